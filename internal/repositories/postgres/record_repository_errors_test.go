package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"

	"github.com/waffle-iron/archivesspace/internal/entities"
	"github.com/waffle-iron/archivesspace/internal/models"
	"github.com/waffle-iron/archivesspace/internal/registry"
)

// mockRegistry resolves the catalog without a store; repositories under
// sqlmock only need the type catalog.
func mockRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.New(nil, nil)
	if err := models.Register(reg); err != nil {
		t.Fatalf("Failed to register catalog: %v", err)
	}
	if err := reg.Resolve(context.Background(), nil); err != nil {
		t.Fatalf("Failed to resolve registry: %v", err)
	}
	return reg
}

func TestRecordRepository_BumpVersion_ConcurrencyConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRecordRepository(mockRegistry(t))
	ctx := context.Background()

	// Another writer bumps the version between the read and the
	// conditional update; zero rows come back from the update.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT lock_version FROM agent WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"lock_version"}).AddRow(int64(3)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE agent SET lock_version = $1, system_mtime = $2 WHERE id = $3 AND lock_version = $4")).
		WithArgs(int64(4), sqlmock.AnyArg(), int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.BumpVersion(ctx, db, entities.Ref{Type: models.TypeAgent, ID: 5})
	if !entities.IsConcurrencyConflict(err) {
		t.Errorf("Expected ErrConcurrencyConflict, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

func TestRecordRepository_Delete_ForeignKeyViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRecordRepository(mockRegistry(t))
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM agent WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnError(errors.New(`pq: update or delete on table "agent" violates foreign key constraint "linked_agents_rlshp_agent_id_fkey"`))

	err = repo.Delete(ctx, db, entities.Ref{Type: models.TypeAgent, ID: 5})
	if !entities.IsMergeBlocked(err) {
		t.Errorf("Expected ErrMergeBlocked, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}

func TestRecordRepository_Delete_OtherErrorPassesThrough(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRecordRepository(mockRegistry(t))
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM agent WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnError(errors.New("pq: connection reset by peer"))

	err = repo.Delete(ctx, db, entities.Ref{Type: models.TypeAgent, ID: 5})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if entities.IsMergeBlocked(err) {
		t.Error("Expected a plain storage error, got ErrMergeBlocked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet sqlmock expectations: %v", err)
	}
}
