package storage

import (
	"fmt"
	"time"
)

// SearchResult is one hit from a full-text search across pane segments.
type SearchResult struct {
	PaneID     string
	Content    string
	CapturedAt time.Time
	Rank       float64
}

// SearchWithResults runs a full-text query against captured pane segments
// using the segments_fts virtual table, optionally scoped to a pane.
func (s *Store) SearchWithResults(query, paneID string, limit int) ([]SearchResult, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 20
	}

	sqlQuery := `
		SELECT s.pane_id, s.content, s.captured_at, bm25(segments_fts) AS rank
		FROM segments_fts
		JOIN segments s ON s.id = segments_fts.rowid
		WHERE segments_fts MATCH ?
	`
	args := []any{query}
	if paneID != "" {
		sqlQuery += " AND s.pane_id = ?"
		args = append(args, paneID)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search with results: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.PaneID, &r.Content, &r.CapturedAt, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
