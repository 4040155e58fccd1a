package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrReservationConflict indicates an active reservation already exists for
// the pane.
var ErrReservationConflict = fmt.Errorf("storage: reservation conflict")

// Reservation is a persistent, TTL-bounded exclusive lease on a pane.
type Reservation struct {
	ID         string
	PaneID     string
	OwnerKind  string
	OwnerID    string
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ReleasedAt *time.Time
}

// IsActive reports whether the reservation is neither released nor expired.
func (r Reservation) IsActive(now time.Time) bool {
	return r.ReleasedAt == nil && now.Before(r.ExpiresAt)
}

// CreateReservation creates a new reservation for a pane. It fails with
// ErrReservationConflict if an active reservation already exists for that
// pane; the check-then-insert runs inside one transaction so two concurrent
// callers cannot both succeed.
func (s *Store) CreateReservation(r *Reservation, now time.Time) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reservation tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	active, err := activeReservationTx(tx, r.PaneID, now)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrReservationConflict
	}

	_, err = tx.Exec(`
		INSERT INTO reservations (id, pane_id, owner_kind, owner_id, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.PaneID, r.OwnerKind, r.OwnerID, nullableString(r.Reason), r.CreatedAt, r.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	s.notify(Event{Type: EventReservationCreated, PaneID: r.PaneID, ID: r.ID})
	return nil
}

// ReleaseReservation marks a reservation released. Idempotent: releasing an
// already-released reservation returns (false, nil).
func (s *Store) ReleaseReservation(id string, now time.Time) (bool, error) {
	if s.db == nil {
		return false, ErrStoreClosed
	}
	res, err := s.db.Exec(`
		UPDATE reservations SET released_at = ? WHERE id = ? AND released_at IS NULL
	`, now, id)
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notify(Event{Type: EventReservationReleased, ID: id})
	}
	return n > 0, nil
}

// GetActiveReservation returns the active reservation for a pane, if any.
func (s *Store) GetActiveReservation(paneID string, now time.Time) (*Reservation, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	return activeReservationTx(s.db, paneID, now)
}

// ListActiveReservations returns every currently-active reservation.
func (s *Store) ListActiveReservations(now time.Time) ([]Reservation, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT id, pane_id, owner_kind, owner_id, reason, created_at, expires_at, released_at
		FROM reservations
		WHERE released_at IS NULL AND expires_at > ?
		ORDER BY created_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// activeReservationTx runs on either *sql.DB or *sql.Tx and returns
// (nil, nil) when the pane has no active reservation.
func activeReservationTx(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, paneID string, now time.Time) (*Reservation, error) {
	row := q.QueryRow(`
		SELECT id, pane_id, owner_kind, owner_id, reason, created_at, expires_at, released_at
		FROM reservations
		WHERE pane_id = ? AND released_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, paneID, now)

	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanReservation(row rowScanner) (Reservation, error) {
	var r Reservation
	var reason sql.NullString
	var releasedAt sql.NullTime
	err := row.Scan(&r.ID, &r.PaneID, &r.OwnerKind, &r.OwnerID, &reason, &r.CreatedAt, &r.ExpiresAt, &releasedAt)
	if err != nil {
		return Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	r.Reason = reason.String
	if releasedAt.Valid {
		t := releasedAt.Time
		r.ReleasedAt = &t
	}
	return r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
