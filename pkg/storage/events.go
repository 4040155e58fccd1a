package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// StoredEvent is a detection persisted as a queryable event.
type StoredEvent struct {
	ID            string
	PaneID        string
	RuleID        string
	AgentType     string
	EventType     string
	Severity      string
	Confidence    float64
	MatchedText   string
	ExtractedJSON string
	TriageState   string
	CreatedAt     time.Time
}

// EventQuery filters a call to GetEvents.
type EventQuery struct {
	PaneID      string
	RuleID      string
	AgentType   string
	TriageState string
	Since       time.Time
	Limit       int
}

// RecordEvent persists a detection as a queryable event.
func (s *Store) RecordEvent(e StoredEvent) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if e.TriageState == "" {
		e.TriageState = "new"
	}
	_, err := s.db.Exec(`
		INSERT INTO events (id, pane_id, rule_id, agent_type, event_type, severity, confidence, matched_text, extracted_json, triage_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullableString(e.PaneID), e.RuleID, e.AgentType, e.EventType, e.Severity, e.Confidence,
		e.MatchedText, e.ExtractedJSON, e.TriageState, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// GetEvents returns events matching the query, newest-first.
func (s *Store) GetEvents(q EventQuery) ([]StoredEvent, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	clauses := []string{"1 = 1"}
	args := []any{}
	if q.PaneID != "" {
		clauses = append(clauses, "pane_id = ?")
		args = append(args, q.PaneID)
	}
	if q.RuleID != "" {
		clauses = append(clauses, "rule_id = ?")
		args = append(args, q.RuleID)
	}
	if q.AgentType != "" {
		clauses = append(clauses, "agent_type = ?")
		args = append(args, q.AgentType)
	}
	if q.TriageState != "" {
		clauses = append(clauses, "triage_state = ?")
		args = append(args, q.TriageState)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, pane_id, rule_id, agent_type, event_type, severity, confidence, matched_text, extracted_json, triage_state, created_at
		FROM events WHERE %s ORDER BY created_at DESC LIMIT ?
	`, strings.Join(clauses, " AND "))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var paneID sql.NullString
		if err := rows.Scan(&e.ID, &paneID, &e.RuleID, &e.AgentType, &e.EventType, &e.Severity,
			&e.Confidence, &e.MatchedText, &e.ExtractedJSON, &e.TriageState, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.PaneID = paneID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEventAnnotations returns the note attached to an event, if any.
func (s *Store) GetEventAnnotations(id string) (string, error) {
	if s.db == nil {
		return "", ErrStoreClosed
	}
	var note sql.NullString
	err := s.db.QueryRow(`SELECT note FROM event_annotations WHERE event_id = ?`, id).Scan(&note)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get event annotations: %w", err)
	}
	return note.String, nil
}

// SetEventNote upserts the note attached to an event.
func (s *Store) SetEventNote(id, note string, now time.Time) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO event_annotations (event_id, note, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET note = excluded.note, updated_at = excluded.updated_at
	`, id, note, now)
	if err != nil {
		return fmt.Errorf("set event note: %w", err)
	}
	return nil
}

// SetEventTriageState updates the triage state of an event (e.g. new,
// acknowledged, resolved, ignored).
func (s *Store) SetEventTriageState(id, state string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`UPDATE events SET triage_state = ? WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("set event triage state: %w", err)
	}
	return nil
}

// AddEventLabel attaches a label to an event (idempotent).
func (s *Store) AddEventLabel(id, label string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO event_labels (event_id, label) VALUES (?, ?)`, id, label)
	if err != nil {
		return fmt.Errorf("add event label: %w", err)
	}
	return nil
}

// RemoveEventLabel detaches a label from an event.
func (s *Store) RemoveEventLabel(id, label string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`DELETE FROM event_labels WHERE event_id = ? AND label = ?`, id, label)
	if err != nil {
		return fmt.Errorf("remove event label: %w", err)
	}
	return nil
}
