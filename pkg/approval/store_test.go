package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Store{Storage: db, WorkspaceID: "ws-test"}
}

func requireApprovalInput() policy.Input {
	return policy.Input{
		Action:      policy.ActionSendText,
		Actor:       policy.ActorRobot,
		PaneID:      "pane-1",
		TextSummary: "send: continue",
	}
}

func TestAttachToDecisionPopulatesArtifact(t *testing.T) {
	s := newStore(t)

	d, err := s.AttachToDecision(policy.RequireApproval("prompt unknown"), requireApprovalInput(), "")
	require.NoError(t, err)

	require.NotNil(t, d.Approval)
	assert.NotEmpty(t, d.Approval.ID)
	assert.Equal(t, "wa approve "+d.Approval.ID, d.Approval.Command)
	assert.True(t, d.Approval.ExpiresAt.After(time.Now()))
}

func TestAttachToDecisionDeduplicates(t *testing.T) {
	s := newStore(t)

	first, err := s.AttachToDecision(policy.RequireApproval("prompt unknown"), requireApprovalInput(), "")
	require.NoError(t, err)
	second, err := s.AttachToDecision(policy.RequireApproval("prompt unknown"), requireApprovalInput(), "")
	require.NoError(t, err)

	require.NotNil(t, first.Approval)
	require.NotNil(t, second.Approval)
	assert.Equal(t, first.Approval.ID, second.Approval.ID)
}

func TestAttachToDecisionDistinctSummaries(t *testing.T) {
	s := newStore(t)

	in := requireApprovalInput()
	first, err := s.AttachToDecision(policy.RequireApproval("r"), in, "send: continue")
	require.NoError(t, err)

	other := in
	other.TextSummary = "send: retry"
	second, err := s.AttachToDecision(policy.RequireApproval("r"), other, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Approval.ID, second.Approval.ID)
}

func TestAttachToDecisionPassesThroughOtherKinds(t *testing.T) {
	s := newStore(t)

	d, err := s.AttachToDecision(policy.Allow("policy passed"), requireApprovalInput(), "")
	require.NoError(t, err)
	assert.Nil(t, d.Approval)

	d, err = s.AttachToDecision(policy.Deny("reserved"), requireApprovalInput(), "")
	require.NoError(t, err)
	assert.Nil(t, d.Approval)
}

func TestResolve(t *testing.T) {
	s := newStore(t)

	d, err := s.AttachToDecision(policy.RequireApproval("r"), requireApprovalInput(), "")
	require.NoError(t, err)

	require.NoError(t, s.Resolve(d.Approval.ID, "approved", "operator-1"))

	pending, err := s.Storage.GetPendingApproval(d.Approval.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", pending.Status)
	assert.Equal(t, "operator-1", pending.DecidedBy)

	// Resolving again leaves the first verdict in place.
	require.NoError(t, s.Resolve(d.Approval.ID, "rejected", "operator-2"))
	pending, err = s.Storage.GetPendingApproval(d.Approval.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", pending.Status)
}

func TestResolveRejectsUnknownVerdict(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Resolve("some-id", "maybe", "op"))
}

func TestExpiredPendingApprovalIsNotReused(t *testing.T) {
	now := time.Now().UTC()
	s := newStore(t)
	s.TTL = time.Minute
	s.Now = func() time.Time { return now }

	first, err := s.AttachToDecision(policy.RequireApproval("r"), requireApprovalInput(), "")
	require.NoError(t, err)

	// Past the TTL the pending request no longer dedups; a fresh one is
	// created.
	s.Now = func() time.Time { return now.Add(2 * time.Minute) }
	second, err := s.AttachToDecision(policy.RequireApproval("r"), requireApprovalInput(), "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Approval.ID, second.Approval.ID)
}
