// Package approval persists pending approval requests and attaches
// operator-grantable artifacts to require-approval policy decisions.
package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/storage"
)

// DefaultTTL is how long a pending approval stays grantable.
const DefaultTTL = 15 * time.Minute

// Store persists pending approvals and deduplicates identical requests
// within the TTL. The dedup key is (workspace, action, pane, summary
// hash), arbitrated at the storage layer.
type Store struct {
	// Storage backs the pending_approvals table.
	Storage *storage.Store
	// WorkspaceID scopes approvals to one workspace/session.
	WorkspaceID string
	// TTL overrides DefaultTTL when positive.
	TTL time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// AttachToDecision persists a pending approval for a require-approval
// decision and returns the decision with its approval artifact populated.
// Decisions of any other kind pass through unchanged. An identical pending
// request within the TTL is reused rather than duplicated.
func (s *Store) AttachToDecision(d policy.Decision, input policy.Input, textSummary string) (policy.Decision, error) {
	if d.Kind != policy.DecisionRequireApproval || s.Storage == nil {
		return d, nil
	}

	now := s.now()
	if textSummary == "" {
		textSummary = input.TextSummary
	}
	summaryHash := storage.SummaryHash(textSummary)

	existing, err := s.Storage.FindPendingApproval(s.WorkspaceID, string(input.Action), input.PaneID, summaryHash, now)
	if err != nil {
		return d, fmt.Errorf("find pending approval: %w", err)
	}
	if existing != nil {
		d.Approval = &policy.ApprovalArtifact{
			Command:   existing.Command,
			ID:        existing.ID,
			ExpiresAt: existing.ExpiresAt,
		}
		return d, nil
	}

	pending := &storage.PendingApproval{
		ID:          uuid.NewString(),
		WorkspaceID: s.WorkspaceID,
		Action:      string(input.Action),
		PaneID:      input.PaneID,
		SummaryHash: summaryHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl()),
	}
	pending.Command = ApprovalCommand(pending.ID)

	if err := s.Storage.CreatePendingApproval(pending); err != nil {
		return d, fmt.Errorf("create pending approval: %w", err)
	}

	d.Approval = &policy.ApprovalArtifact{
		Command:   pending.Command,
		ID:        pending.ID,
		ExpiresAt: pending.ExpiresAt,
	}
	return d, nil
}

// Resolve records the operator's verdict for a pending approval. verdict
// is "approved" or "rejected"; resolving an already-resolved approval is a
// no-op.
func (s *Store) Resolve(approvalID, verdict, decidedBy string) error {
	if s.Storage == nil {
		return fmt.Errorf("approval store has no storage")
	}
	if verdict != "approved" && verdict != "rejected" {
		return fmt.Errorf("unknown approval verdict %q", verdict)
	}
	return s.Storage.ResolvePendingApproval(approvalID, verdict, decidedBy, s.now())
}

// ApprovalCommand is the string an operator pastes to grant approval.
func ApprovalCommand(approvalID string) string {
	return "wa approve " + approvalID
}

func (s *Store) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
