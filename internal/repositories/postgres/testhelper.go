package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/waffle-iron/archivesspace/internal/models"
	"github.com/waffle-iron/archivesspace/internal/registry"
)

// testSchema mirrors the postgres migrations in sqlite dialect so the
// repository tests run against a real store without a database server.
// The engine's SQL is written to run under both drivers.
var testSchema = []string{
	`CREATE TABLE repository (
		id INTEGER PRIMARY KEY,
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE agent (
		id INTEGER PRIMARY KEY,
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE subject (
		id INTEGER PRIMARY KEY,
		repo_id INTEGER NOT NULL REFERENCES repository(id),
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE event (
		id INTEGER PRIMARY KEY,
		repo_id INTEGER NOT NULL REFERENCES repository(id),
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE resource (
		id INTEGER PRIMARY KEY,
		repo_id INTEGER NOT NULL REFERENCES repository(id),
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE accession (
		id INTEGER PRIMARY KEY,
		repo_id INTEGER NOT NULL REFERENCES repository(id),
		lock_version INTEGER NOT NULL DEFAULT 0,
		system_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_mtime TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE linked_agents_rlshp (
		id INTEGER PRIMARY KEY,
		event_id INTEGER REFERENCES event(id),
		agent_id INTEGER REFERENCES agent(id),
		role TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE event_link_rlshp (
		id INTEGER PRIMARY KEY,
		event_id INTEGER REFERENCES event(id),
		resource_id INTEGER REFERENCES resource(id),
		accession_id INTEGER REFERENCES accession(id),
		role TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE related_resources_rlshp (
		id INTEGER PRIMARY KEY,
		resource_id_0 INTEGER REFERENCES resource(id),
		resource_id_1 INTEGER REFERENCES resource(id),
		relator TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE subject_link_rlshp (
		id INTEGER PRIMARY KEY,
		resource_id INTEGER REFERENCES resource(id),
		accession_id INTEGER REFERENCES accession(id),
		subject_id INTEGER REFERENCES subject(id),
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE classification_rlshp (
		id INTEGER PRIMARY KEY,
		resource_id INTEGER REFERENCES resource(id),
		subject_id INTEGER REFERENCES subject(id),
		note TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	// Record detail outside the engine; lets tests pin a record in place
	// so its deletion is blocked.
	`CREATE TABLE agent_contact (
		id INTEGER PRIMARY KEY,
		agent_id INTEGER NOT NULL REFERENCES agent(id),
		name TEXT
	)`,
}

// SetupTestDB opens a throwaway store with the full schema applied.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "engine.db") + "?_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
	})

	for _, stmt := range testSchema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to apply test schema: %v", err)
		}
	}
	return db
}

// SetupRegistry resolves the canonical catalog against the test store.
func SetupRegistry(t *testing.T, db *sql.DB) *registry.Registry {
	t.Helper()

	reg := registry.New(zap.NewNop().Sugar(), nil)
	if err := models.Register(reg); err != nil {
		t.Fatalf("Failed to register catalog: %v", err)
	}
	if err := reg.Resolve(context.Background(), db); err != nil {
		t.Fatalf("Failed to resolve registry: %v", err)
	}
	return reg
}

// CreateRepository seeds one repository row and returns its id.
func CreateRepository(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	var id int64
	if err := db.QueryRow("INSERT INTO repository DEFAULT VALUES RETURNING id").Scan(&id); err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	return id
}

// CreateGlobalRecord seeds a globally-scoped record (repository, agent).
func CreateGlobalRecord(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()

	var id int64
	query := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id", table)
	if err := db.QueryRow(query).Scan(&id); err != nil {
		t.Fatalf("Failed to create %s record: %v", table, err)
	}
	return id
}

// CreateScopedRecord seeds a repository-scoped record.
func CreateScopedRecord(t *testing.T, db *sql.DB, table string, repoID int64) int64 {
	t.Helper()

	var id int64
	query := fmt.Sprintf("INSERT INTO %s (repo_id) VALUES ($1) RETURNING id", table)
	if err := db.QueryRow(query, repoID).Scan(&id); err != nil {
		t.Fatalf("Failed to create %s record: %v", table, err)
	}
	return id
}

// SetSystemMtime pins a record's system_mtime so tests can detect a touch.
func SetSystemMtime(t *testing.T, db *sql.DB, table string, id int64, tm time.Time) {
	t.Helper()

	query := fmt.Sprintf("UPDATE %s SET system_mtime = $1 WHERE id = $2", table)
	if _, err := db.Exec(query, tm, id); err != nil {
		t.Fatalf("Failed to set system_mtime on %s %d: %v", table, id, err)
	}
}

// GetSystemMtime reads a record's system_mtime.
func GetSystemMtime(t *testing.T, db *sql.DB, table string, id int64) time.Time {
	t.Helper()

	var tm time.Time
	query := fmt.Sprintf("SELECT system_mtime FROM %s WHERE id = $1", table)
	if err := db.QueryRow(query, id).Scan(&tm); err != nil {
		t.Fatalf("Failed to read system_mtime of %s %d: %v", table, id, err)
	}
	return tm
}

// GetLockVersion reads a record's optimistic lock version.
func GetLockVersion(t *testing.T, db *sql.DB, table string, id int64) int64 {
	t.Helper()

	var v int64
	query := fmt.Sprintf("SELECT lock_version FROM %s WHERE id = $1", table)
	if err := db.QueryRow(query, id).Scan(&v); err != nil {
		t.Fatalf("Failed to read lock_version of %s %d: %v", table, id, err)
	}
	return v
}

// CountRows counts the rows of a table.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows of %s: %v", table, err)
	}
	return n
}
