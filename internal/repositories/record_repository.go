package repositories

import (
	"context"

	"github.com/waffle-iron/archivesspace/internal/entities"
)

// RecordRepository is the engine's narrow view of the externally owned
// record tables: existence, isolation scope, concurrency version, and
// modification markers. Records themselves are never owned by the engine.
type RecordRepository interface {
	// Exists reports whether the referenced record exists.
	Exists(ctx context.Context, db DBTX, ref entities.Ref) (bool, error)

	// RepoScope returns the record's repository id. scoped is false for
	// globally-scoped record types.
	RepoScope(ctx context.Context, db DBTX, ref entities.Ref) (repoID int64, scoped bool, err error)

	// UpdateRepoScope moves a record to another repository.
	UpdateRepoScope(ctx context.Context, db DBTX, ref entities.Ref, repoID int64) error

	// BumpVersion increments the record's optimistic lock version.
	// Fails with entities.ErrConcurrencyConflict when the bump races with
	// another writer.
	BumpVersion(ctx context.Context, db DBTX, ref entities.Ref) error

	// TouchMtime updates the system modification marker of the given
	// records of one type, driving downstream re-derivation.
	TouchMtime(ctx context.Context, db DBTX, recordType string, ids []int64) error

	// Delete removes a record. Fails with entities.ErrMergeBlocked when a
	// storage constraint indicates a remaining reference.
	Delete(ctx context.Context, db DBTX, ref entities.Ref) error
}
