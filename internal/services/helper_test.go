package services

import (
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories/postgres"
)

// newTestEngine wires the engine over a throwaway store with the canonical
// catalog resolved.
func newTestEngine(t *testing.T) (*Engine, *sql.DB, *registry.Registry) {
	t.Helper()

	db := postgres.SetupTestDB(t)
	reg := postgres.SetupRegistry(t, db)
	records := postgres.NewPostgresRecordRepository(reg)
	instances := postgres.NewPostgresInstanceRepository(reg.Resolver())
	return NewEngine(db, reg, records, instances, zap.NewNop().Sugar()), db, reg
}
