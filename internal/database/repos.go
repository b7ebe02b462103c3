package database

import (
	"database/sql"
	"fmt"
	"time"
)

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// UpsertWatchedRepo adds a repo to the watch list. Returns true if the repo
// was newly added, false if it was already watched.
func (db *DB) UpsertWatchedRepo(fullName, origin string) (bool, error) {
	result, err := db.conn.Exec(
		`INSERT INTO watched_repos (full_name, origin, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT(full_name) DO NOTHING`,
		fullName, origin, nowUTC(),
	)
	if err != nil {
		return false, fmt.Errorf("upserting watched repo: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetWatchedRepos returns all watched repos, newest first.
func (db *DB) GetWatchedRepos() ([]WatchedRepo, error) {
	rows, err := db.conn.Query(
		`SELECT id, full_name, origin, added_at, last_checked, last_summary, readme_hash, embedding
		FROM watched_repos ORDER BY added_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWatchedRepos(rows)
}

// GetWatchedRepo returns a single watched repo, or nil if not watched.
func (db *DB) GetWatchedRepo(fullName string) (*WatchedRepo, error) {
	row := db.conn.QueryRow(
		`SELECT id, full_name, origin, added_at, last_checked, last_summary, readme_hash, embedding
		FROM watched_repos WHERE full_name = ?`, fullName,
	)
	r, err := scanWatchedRepo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveWatchedRepo unwatches a repo and deletes its feed events. Discovery
// candidates with the same name are left alone. Returns true if removed.
func (db *DB) RemoveWatchedRepo(fullName string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}

	result, err := tx.Exec("DELETE FROM watched_repos WHERE full_name = ?", fullName)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if n == 0 {
		tx.Rollback()
		return false, nil
	}

	if _, err := tx.Exec("DELETE FROM feed_events WHERE repo_full_name = ?", fullName); err != nil {
		tx.Rollback()
		return false, err
	}

	return true, tx.Commit()
}

// MarkRepoChecked advances last_checked to checkedAt. The timestamp never
// moves backward, so a stale concurrent writer cannot regress it.
func (db *DB) MarkRepoChecked(fullName, checkedAt string) error {
	_, err := db.conn.Exec(
		`UPDATE watched_repos SET last_checked = ?
		WHERE full_name = ? AND (last_checked IS NULL OR last_checked < ?)`,
		checkedAt, fullName, checkedAt,
	)
	return err
}

// UpdateRepoSummary replaces last_summary. Callers must only invoke this when
// a poll actually produced a summary; an empty summary is rejected here so a
// quiet poll can never erase history.
func (db *DB) UpdateRepoSummary(fullName, summary string) error {
	if summary == "" {
		return fmt.Errorf("refusing to overwrite last_summary with empty value")
	}
	_, err := db.conn.Exec(
		"UPDATE watched_repos SET last_summary = ? WHERE full_name = ?",
		summary, fullName,
	)
	return err
}

// UpdateRepoReadmeHash records the last observed README content hash.
func (db *DB) UpdateRepoReadmeHash(fullName, hash string) error {
	_, err := db.conn.Exec(
		"UPDATE watched_repos SET readme_hash = ? WHERE full_name = ?",
		hash, fullName,
	)
	return err
}

// UpdateRepoEmbedding stores the repo's cached embedding vector.
func (db *DB) UpdateRepoEmbedding(fullName string, embedding []float64) error {
	enc, err := encodeVector(embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = db.conn.Exec(
		"UPDATE watched_repos SET embedding = ? WHERE full_name = ?",
		enc, fullName,
	)
	return err
}

func scanWatchedRepos(rows *sql.Rows) ([]WatchedRepo, error) {
	var repos []WatchedRepo
	for rows.Next() {
		var r WatchedRepo
		var emb *string
		if err := rows.Scan(&r.ID, &r.FullName, &r.Origin, &r.AddedAt,
			&r.LastChecked, &r.LastSummary, &r.ReadmeHash, &emb); err != nil {
			return nil, err
		}
		vec, err := decodeVector(emb)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.FullName, err)
		}
		r.Embedding = vec
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func scanWatchedRepo(row *sql.Row) (*WatchedRepo, error) {
	var r WatchedRepo
	var emb *string
	if err := row.Scan(&r.ID, &r.FullName, &r.Origin, &r.AddedAt,
		&r.LastChecked, &r.LastSummary, &r.ReadmeHash, &emb); err != nil {
		return nil, err
	}
	vec, err := decodeVector(emb)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", r.FullName, err)
	}
	r.Embedding = vec
	return &r, nil
}
