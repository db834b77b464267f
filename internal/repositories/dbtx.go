package repositories

import (
	"context"
	"database/sql"
)

// DBTX is the querier shared by *sql.DB and *sql.Tx. Repositories operate
// on it so the service layer can run several repositories inside one
// transaction; partial effects of an engine operation are never visible.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
