package database

import (
	"database/sql"
	"fmt"
	"log"
)

// migrate applies any migrations newer than the version stamped in
// PRAGMA user_version, one transaction per step.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	// Stores created before versioning carry the migration-1 schema but
	// report version 0. Stamp them so the initial DDL is not re-run.
	if current == 0 {
		preVersioned, err := hasTable(conn, "watched_repos")
		if err != nil {
			return err
		}
		if preVersioned {
			log.Printf("stamping pre-versioning database as schema version 1")
			if _, err := conn.Exec("PRAGMA user_version = 1"); err != nil {
				return fmt.Errorf("stamping schema version: %w", err)
			}
			current = 1
		}
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Printf("applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc sqlite rejects PRAGMA user_version inside the
		// transaction. A crash between commit and stamp is recoverable,
		// the DDL is idempotent and re-runs cleanly.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting schema version %d: %w", m.Version, err)
		}
	}

	return nil
}

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

func hasTable(conn *sql.DB, name string) (bool, error) {
	var n int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking for table %s: %w", name, err)
	}
	return n > 0, nil
}
