package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestFreshDBGetsLatestVersion(t *testing.T) {
	db := openTestDB(t)

	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.UpsertWatchedRepo("alice/widgets", OriginManual)
	db.Close()

	// Re-opening must not re-run migrations or lose data.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db.Close()

	repo, err := db.GetWatchedRepo("alice/widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo == nil {
		t.Error("expected data to survive reopen")
	}
}

func TestLegacyDBStamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Simulate a pre-migration database: schema present, user_version 0.
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening raw db: %v", err)
	}
	if _, err := conn.Exec(`CREATE TABLE watched_repos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT UNIQUE NOT NULL,
		origin TEXT NOT NULL DEFAULT 'manual',
		added_at TEXT NOT NULL,
		last_checked TEXT,
		last_summary TEXT,
		readme_hash TEXT,
		embedding TEXT
	)`); err != nil {
		t.Fatalf("creating legacy table: %v", err)
	}
	conn.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("opening legacy db: %v", err)
	}
	defer db.Close()

	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version < 1 {
		t.Errorf("expected legacy db stamped to at least version 1, got %d", version)
	}
}

func TestMigrationVersionsAreOrdered(t *testing.T) {
	prev := 0
	for _, m := range migrations {
		if m.Version <= prev {
			t.Errorf("migration versions must increase: %d after %d", m.Version, prev)
		}
		prev = m.Version
	}
}
