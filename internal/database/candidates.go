package database

import "database/sql"

// UpsertCandidate records a discovery candidate. Re-discovery refreshes the
// score, context, metadata, and timestamp but never touches the dismissed
// flag: a dismissed candidate stays dismissed no matter how often search
// surfaces it again.
func (db *DB) UpsertCandidate(c DiscoveryCandidate) error {
	_, err := db.conn.Exec(
		`INSERT INTO discovery_candidates
		(full_name, discovered_at, similarity_score, matched_context, description, stars, language)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_name) DO UPDATE SET
			discovered_at = excluded.discovered_at,
			similarity_score = excluded.similarity_score,
			matched_context = excluded.matched_context,
			description = excluded.description,
			stars = excluded.stars,
			language = excluded.language`,
		c.FullName, c.DiscoveredAt, c.SimilarityScore, c.MatchedContext,
		c.Description, c.Stars, c.Language,
	)
	return err
}

// CandidateFilter narrows a candidate listing.
type CandidateFilter struct {
	MinScore         float64
	Context          string
	Limit            int
	IncludeDismissed bool
}

// GetCandidates returns discovery candidates, best score first. Dismissed
// candidates are excluded unless explicitly requested.
func (db *DB) GetCandidates(f CandidateFilter) ([]DiscoveryCandidate, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}

	query := `SELECT id, full_name, discovered_at, similarity_score, matched_context,
		description, stars, language, dismissed
		FROM discovery_candidates WHERE similarity_score >= ?`
	args := []any{f.MinScore}

	if !f.IncludeDismissed {
		query += " AND dismissed = 0"
	}
	if f.Context != "" {
		query += " AND matched_context = ?"
		args = append(args, f.Context)
	}

	query += " ORDER BY similarity_score DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// GetCandidate returns a single candidate by repo name, or nil.
func (db *DB) GetCandidate(fullName string) (*DiscoveryCandidate, error) {
	row := db.conn.QueryRow(
		`SELECT id, full_name, discovered_at, similarity_score, matched_context,
		description, stars, language, dismissed
		FROM discovery_candidates WHERE full_name = ?`, fullName,
	)
	var c DiscoveryCandidate
	var dismissed int
	err := row.Scan(&c.ID, &c.FullName, &c.DiscoveredAt, &c.SimilarityScore,
		&c.MatchedContext, &c.Description, &c.Stars, &c.Language, &dismissed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Dismissed = dismissed != 0
	return &c, nil
}

// DismissCandidate marks a candidate as dismissed. Dismissal is terminal;
// there is no un-dismiss. Returns true if a row was updated.
func (db *DB) DismissCandidate(fullName string) (bool, error) {
	result, err := db.conn.Exec(
		"UPDATE discovery_candidates SET dismissed = 1 WHERE full_name = ?", fullName,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCandidates(rows *sql.Rows) ([]DiscoveryCandidate, error) {
	var candidates []DiscoveryCandidate
	for rows.Next() {
		var c DiscoveryCandidate
		var dismissed int
		if err := rows.Scan(&c.ID, &c.FullName, &c.DiscoveredAt, &c.SimilarityScore,
			&c.MatchedContext, &c.Description, &c.Stars, &c.Language, &dismissed); err != nil {
			return nil, err
		}
		c.Dismissed = dismissed != 0
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
