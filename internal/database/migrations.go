package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS watched_repos (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name TEXT UNIQUE NOT NULL,
    origin TEXT NOT NULL DEFAULT 'manual',
    added_at TEXT NOT NULL,
    last_checked TEXT,
    last_summary TEXT,
    readme_hash TEXT,
    embedding TEXT
);

CREATE TABLE IF NOT EXISTS project_contexts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL,
    embedding TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_full_name TEXT NOT NULL,
    event_type TEXT NOT NULL,
    dedup_key TEXT NOT NULL,
    event_at TEXT NOT NULL,
    title TEXT NOT NULL,
    summary TEXT,
    relevance_score REAL DEFAULT 0.0,
    score_degraded INTEGER DEFAULT 0,
    matched_context TEXT,
    raw_data TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(repo_full_name, event_type, dedup_key)
);

CREATE TABLE IF NOT EXISTS discovery_candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name TEXT UNIQUE NOT NULL,
    discovered_at TEXT NOT NULL,
    similarity_score REAL NOT NULL,
    matched_context TEXT,
    description TEXT,
    stars INTEGER DEFAULT 0,
    language TEXT,
    dismissed INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS embedding_cache (
    fingerprint TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    vector TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_feed_events_repo ON feed_events(repo_full_name);
CREATE INDEX IF NOT EXISTS idx_feed_events_at ON feed_events(event_at);
CREATE INDEX IF NOT EXISTS idx_feed_events_relevance ON feed_events(relevance_score);
CREATE INDEX IF NOT EXISTS idx_candidates_score ON discovery_candidates(similarity_score);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
