package database

import (
	"database/sql"
	"fmt"
)

// GetCachedEmbedding looks up a stored embedding by content fingerprint.
// Returns (nil, false, nil) on a miss.
func (db *DB) GetCachedEmbedding(fingerprint string) ([]float64, bool, error) {
	var enc string
	err := db.conn.QueryRow(
		"SELECT vector FROM embedding_cache WHERE fingerprint = ?", fingerprint,
	).Scan(&enc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(&enc)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached embedding: %w", err)
	}
	return vec, true, nil
}

// PutCachedEmbedding stores an embedding under its fingerprint. Identical
// fingerprints written concurrently resolve to the first writer's row.
func (db *DB) PutCachedEmbedding(fingerprint, model string, vector []float64) error {
	enc, err := encodeVector(vector)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO embedding_cache (fingerprint, model, vector)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		fingerprint, model, enc,
	)
	return err
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM watched_repos", &s.WatchedRepos},
		{"SELECT COUNT(*) FROM feed_events", &s.FeedEvents},
		{"SELECT COUNT(*) FROM project_contexts", &s.ProjectContexts},
		{"SELECT COUNT(*) FROM discovery_candidates WHERE dismissed = 0", &s.PendingCandidates},
		{"SELECT COUNT(*) FROM embedding_cache", &s.CachedEmbeddings},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
