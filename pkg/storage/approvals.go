package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// PendingApproval is a persisted approval request awaiting an operator's
// verdict. It backs pkg/approval.Store.
type PendingApproval struct {
	ID          string
	WorkspaceID string
	Action      string
	PaneID      string
	SummaryHash string
	Command     string
	Status      string // pending, approved, rejected, expired
	DecidedBy   string
	DecidedAt   time.Time
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// CreatePendingApproval inserts a new pending approval.
func (s *Store) CreatePendingApproval(a *PendingApproval) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if a.Status == "" {
		a.Status = "pending"
	}
	_, err := s.db.Exec(`
		INSERT INTO pending_approvals (id, workspace_id, action, pane_id, summary_hash, command, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.WorkspaceID, a.Action, a.PaneID, a.SummaryHash, a.Command, a.Status, a.CreatedAt, a.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create pending approval: %w", err)
	}
	s.notify(Event{Type: EventApprovalCreated, PaneID: a.PaneID, ID: a.ID})
	return nil
}

// FindPendingApproval looks up a non-expired, still-pending approval that
// matches the same dedup key (workspace, action, pane, summary hash), used
// to collapse duplicate requests within the approval TTL.
func (s *Store) FindPendingApproval(workspaceID, action, paneID, summaryHash string, now time.Time) (*PendingApproval, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	row := s.db.QueryRow(`
		SELECT id, workspace_id, action, pane_id, summary_hash, command, status, decided_by, decided_at, created_at, expires_at
		FROM pending_approvals
		WHERE workspace_id = ? AND action = ? AND pane_id = ? AND summary_hash = ?
		  AND status = 'pending' AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`, workspaceID, action, paneID, summaryHash, now)
	return scanPendingApproval(row)
}

// GetPendingApproval returns a pending approval by ID.
func (s *Store) GetPendingApproval(id string) (*PendingApproval, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	row := s.db.QueryRow(`
		SELECT id, workspace_id, action, pane_id, summary_hash, command, status, decided_by, decided_at, created_at, expires_at
		FROM pending_approvals WHERE id = ?
	`, id)
	return scanPendingApproval(row)
}

func scanPendingApproval(row *sql.Row) (*PendingApproval, error) {
	var a PendingApproval
	var paneID, decidedBy sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&a.ID, &a.WorkspaceID, &a.Action, &paneID, &a.SummaryHash, &a.Command,
		&a.Status, &decidedBy, &decidedAt, &a.CreatedAt, &a.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending approval: %w", err)
	}
	a.PaneID = paneID.String
	a.DecidedBy = decidedBy.String
	if decidedAt.Valid {
		a.DecidedAt = decidedAt.Time
	}
	return &a, nil
}

// ResolvePendingApproval records the operator's verdict (approved/rejected).
// Idempotent: resolving an already-resolved approval returns no error and
// leaves the first decision in place.
func (s *Store) ResolvePendingApproval(id, verdict, decidedBy string, now time.Time) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	res, err := s.db.Exec(`
		UPDATE pending_approvals
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = 'pending'
	`, verdict, decidedBy, now, id)
	if err != nil {
		return fmt.Errorf("resolve pending approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Event{Type: EventApprovalDecided, ID: id})
	}
	return nil
}

// ExpirePendingApprovals marks all pending approvals past their expiry as
// expired and returns how many were changed.
func (s *Store) ExpirePendingApprovals(now time.Time) (int, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	res, err := s.db.Exec(`
		UPDATE pending_approvals SET status = 'expired' WHERE status = 'pending' AND expires_at <= ?
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire pending approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
