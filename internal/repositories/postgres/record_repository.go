package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/registry"
	"github.com/waffle-iron/archivesspace/internal/repositories"
)

// PostgresRecordRepository implements RecordRepository over the record
// tables described by the registry's type catalog.
type PostgresRecordRepository struct {
	reg *registry.Registry
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository.
func NewPostgresRecordRepository(reg *registry.Registry) repositories.RecordRepository {
	return &PostgresRecordRepository{reg: reg}
}

func (r *PostgresRecordRepository) table(recordType string) (registry.TypeConfig, error) {
	return r.reg.Type(recordType)
}

// Exists reports whether the referenced record exists.
func (r *PostgresRecordRepository) Exists(ctx context.Context, db repositories.DBTX, ref entities.Ref) (bool, error) {
	tc, err := r.table(ref.Type)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", tc.Table)
	var exists bool
	if err := db.QueryRowContext(ctx, query, ref.ID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "failed to check existence of %s", ref)
	}
	return exists, nil
}

// RepoScope returns the record's repository id; scoped is false for
// globally-scoped record types.
func (r *PostgresRecordRepository) RepoScope(ctx context.Context, db repositories.DBTX, ref entities.Ref) (int64, bool, error) {
	tc, err := r.table(ref.Type)
	if err != nil {
		return 0, false, err
	}
	if !tc.RepositoryScoped {
		return 0, false, nil
	}

	query := fmt.Sprintf("SELECT repo_id FROM %s WHERE id = $1", tc.Table)
	var repoID sql.NullInt64
	err = db.QueryRowContext(ctx, query, ref.ID).Scan(&repoID)
	if err == sql.ErrNoRows {
		return 0, false, errors.Wrapf(entities.ErrDanglingReference, "%s", ref)
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read repository scope of %s", ref)
	}
	return repoID.Int64, true, nil
}

// UpdateRepoScope moves a record to another repository.
func (r *PostgresRecordRepository) UpdateRepoScope(ctx context.Context, db repositories.DBTX, ref entities.Ref, repoID int64) error {
	tc, err := r.table(ref.Type)
	if err != nil {
		return err
	}
	if !tc.RepositoryScoped {
		return errors.Newf("record type %q is not repository-scoped", ref.Type)
	}

	query := fmt.Sprintf("UPDATE %s SET repo_id = $1, system_mtime = $2 WHERE id = $3", tc.Table)
	result, err := db.ExecContext(ctx, query, repoID, time.Now(), ref.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to move %s to repository %d", ref, repoID)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrapf(entities.ErrDanglingReference, "%s", ref)
	}
	return nil
}

// BumpVersion increments the record's optimistic lock version. The update
// is conditional on the version read first; zero rows affected means
// another writer got there in between.
func (r *PostgresRecordRepository) BumpVersion(ctx context.Context, db repositories.DBTX, ref entities.Ref) error {
	tc, err := r.table(ref.Type)
	if err != nil {
		return err
	}

	var version int64
	query := fmt.Sprintf("SELECT lock_version FROM %s WHERE id = $1", tc.Table)
	err = db.QueryRowContext(ctx, query, ref.ID).Scan(&version)
	if err == sql.ErrNoRows {
		return errors.Wrapf(entities.ErrDanglingReference, "%s", ref)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read lock version of %s", ref)
	}

	update := fmt.Sprintf(
		"UPDATE %s SET lock_version = $1, system_mtime = $2 WHERE id = $3 AND lock_version = $4",
		tc.Table,
	)
	result, err := db.ExecContext(ctx, update, version+1, time.Now(), ref.ID, version)
	if err != nil {
		return errors.Wrapf(err, "failed to bump version of %s", ref)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return errors.Wrapf(entities.ErrConcurrencyConflict, "%s", ref)
	}
	return nil
}

// TouchMtime updates the system modification marker of the given records.
func (r *PostgresRecordRepository) TouchMtime(ctx context.Context, db repositories.DBTX, recordType string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tc, err := r.table(recordType)
	if err != nil {
		return err
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf("UPDATE %s SET system_mtime = $1 WHERE id IN (%s)",
		tc.Table, placeholders(2, len(ids)))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "failed to touch mtime of %s records", recordType)
	}
	return nil
}

// Delete removes a record. A foreign key violation means something still
// references the record and the merge must not proceed.
func (r *PostgresRecordRepository) Delete(ctx context.Context, db repositories.DBTX, ref entities.Ref) error {
	tc, err := r.table(ref.Type)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", tc.Table)
	if _, err := db.ExecContext(ctx, query, ref.ID); err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(entities.ErrMergeBlocked, "%s: %v", ref, err)
		}
		return errors.Wrapf(err, "failed to delete %s", ref)
	}
	return nil
}

// isForeignKeyViolation checks for a foreign key constraint error from
// either the postgres or sqlite driver. String matching is necessary
// because the drivers return their own error types that cannot be wrapped
// at the source.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "violates foreign key constraint") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed")
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, "$"+strconv.Itoa(start+i))
	}
	return strings.Join(parts, ", ")
}
