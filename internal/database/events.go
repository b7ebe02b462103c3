package database

import (
	"database/sql"
	"time"
)

// InsertFeedEvent inserts an event. Returns the new ID, or 0 if an event with
// the same (repo, type, dedup_key) already exists. The uniqueness constraint
// is the single source of truth for "has this change been recorded", so
// concurrent writers are safe.
func (db *DB) InsertFeedEvent(ev FeedEvent) (int64, error) {
	degraded := 0
	if ev.ScoreDegraded {
		degraded = 1
	}
	result, err := db.conn.Exec(
		`INSERT INTO feed_events
		(repo_full_name, event_type, dedup_key, event_at, title, summary,
		 relevance_score, score_degraded, matched_context, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name, event_type, dedup_key) DO NOTHING`,
		ev.RepoFullName, ev.EventType, ev.DedupKey, ev.EventAt, ev.Title,
		ev.Summary, ev.RelevanceScore, degraded, ev.MatchedContext, ev.RawData,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// HasFeedEvent reports whether an event with this dedup identity exists.
func (db *DB) HasFeedEvent(repoFullName, eventType, dedupKey string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM feed_events
		WHERE repo_full_name = ? AND event_type = ? AND dedup_key = ?`,
		repoFullName, eventType, dedupKey,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EventFilter narrows a feed event query.
type EventFilter struct {
	DaysBack     int
	MinRelevance float64
	Repo         string
	Context      string
	Limit        int
}

// GetFeedEvents returns events matching the filter, most relevant first.
func (db *DB) GetFeedEvents(f EventFilter) ([]FeedEvent, error) {
	if f.DaysBack <= 0 {
		f.DaysBack = 7
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -f.DaysBack).Format(time.RFC3339)

	query := `SELECT id, repo_full_name, event_type, dedup_key, event_at, title,
		summary, relevance_score, score_degraded, matched_context, raw_data, created_at
		FROM feed_events WHERE event_at >= ? AND relevance_score >= ?`
	args := []any{cutoff, f.MinRelevance}

	if f.Repo != "" {
		query += " AND repo_full_name = ?"
		args = append(args, f.Repo)
	}
	if f.Context != "" {
		query += " AND matched_context = ?"
		args = append(args, f.Context)
	}

	query += " ORDER BY relevance_score DESC, event_at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedEvents(rows)
}

// GetRepoEvents returns all events for one repo, newest first.
func (db *DB) GetRepoEvents(repoFullName string, limit int) ([]FeedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT id, repo_full_name, event_type, dedup_key, event_at, title,
		summary, relevance_score, score_degraded, matched_context, raw_data, created_at
		FROM feed_events WHERE repo_full_name = ?
		ORDER BY event_at DESC LIMIT ?`, repoFullName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeedEvents(rows)
}

func scanFeedEvents(rows *sql.Rows) ([]FeedEvent, error) {
	var events []FeedEvent
	for rows.Next() {
		var ev FeedEvent
		var degraded int
		if err := rows.Scan(&ev.ID, &ev.RepoFullName, &ev.EventType, &ev.DedupKey,
			&ev.EventAt, &ev.Title, &ev.Summary, &ev.RelevanceScore, &degraded,
			&ev.MatchedContext, &ev.RawData, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ScoreDegraded = degraded != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}
