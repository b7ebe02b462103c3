package database

import (
	"database/sql"
	"fmt"
)

// UpsertProjectContext creates or updates a project context. Description and
// embedding are replaced together in one statement, so a re-described context
// is never left with the old embedding.
func (db *DB) UpsertProjectContext(name, description string, embedding []float64) error {
	enc, err := encodeVector(embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	now := nowUTC()
	_, err = db.conn.Exec(
		`INSERT INTO project_contexts (name, description, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		name, description, enc, now, now,
	)
	return err
}

// GetProjectContexts returns all contexts in insertion order. Scoring relies
// on this ordering for deterministic tie-breaking.
func (db *DB) GetProjectContexts() ([]ProjectContext, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, description, embedding, created_at, updated_at
		FROM project_contexts ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contexts []ProjectContext
	for rows.Next() {
		var c ProjectContext
		var emb *string
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &emb, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		vec, err := decodeVector(emb)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for context %s: %w", c.Name, err)
		}
		c.Embedding = vec
		contexts = append(contexts, c)
	}
	return contexts, rows.Err()
}

// GetProjectContext returns a single context by name, or nil if absent.
func (db *DB) GetProjectContext(name string) (*ProjectContext, error) {
	row := db.conn.QueryRow(
		`SELECT id, name, description, embedding, created_at, updated_at
		FROM project_contexts WHERE name = ?`, name,
	)
	var c ProjectContext
	var emb *string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &emb, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	vec, err := decodeVector(emb)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for context %s: %w", c.Name, err)
	}
	c.Embedding = vec
	return &c, nil
}

// RemoveProjectContext deletes a context. Events keep their matched_context
// label as a plain string, so old digests stay intact. Returns true if removed.
func (db *DB) RemoveProjectContext(name string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM project_contexts WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
