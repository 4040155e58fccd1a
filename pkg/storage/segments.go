package storage

import (
	"fmt"
	"time"
)

// Segment is one recent capture of pane output.
type Segment struct {
	PaneID     string
	Content    string
	CapturedAt time.Time
	OSCMarker  bool
}

// RecordSegment appends a new capture segment for a pane.
func (s *Store) RecordSegment(seg Segment) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO segments (pane_id, content, captured_at, osc_marker) VALUES (?, ?, ?, ?)
	`, seg.PaneID, seg.Content, seg.CapturedAt, boolToInt(seg.OSCMarker))
	if err != nil {
		return fmt.Errorf("record segment: %w", err)
	}
	return nil
}

// GetSegments returns the most recent capture segments for a pane,
// newest-first.
func (s *Store) GetSegments(paneID string, limit int) ([]Segment, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT pane_id, content, captured_at, osc_marker
		FROM segments WHERE pane_id = ? ORDER BY captured_at DESC LIMIT ?
	`, paneID, limit)
	if err != nil {
		return nil, fmt.Errorf("get segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var seg Segment
		var osc int
		if err := rows.Scan(&seg.PaneID, &seg.Content, &seg.CapturedAt, &osc); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.OSCMarker = osc != 0
		out = append(out, seg)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
