package inject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"github.com/wa-observability/wa/pkg/approval"
	"github.com/wa-observability/wa/pkg/panecaps"
	"github.com/wa-observability/wa/pkg/paneio"
	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/reservation"
	"github.com/wa-observability/wa/pkg/storage"
)

type fixture struct {
	injector *Injector
	panes    *paneio.MemoryAdapter
	store    *storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	panes := paneio.NewMemoryAdapter()
	panes.AddPane(paneio.PaneInfo{PaneID: "pane-1", Title: "claude session"})

	cfg := policy.DefaultConfig()
	cfg.RatePerPane = rate.Inf
	cfg.RateGlobal = rate.Inf

	inj := &Injector{
		Policy: policy.NewEngine(cfg),
		Panes:  panes,
		Audit:  db,
		Approvals: &approval.Store{
			Storage:     db,
			WorkspaceID: "ws-test",
		},
		Reservations: &reservation.Manager{Storage: db},
	}
	return &fixture{injector: inj, panes: panes, store: db}
}

func safeRequest() Request {
	return Request{
		PaneID: "pane-1",
		Actor:  policy.ActorRobot,
		Capabilities: panecaps.Capabilities{
			PromptActive: panecaps.Bool(true),
			AltScreen:    panecaps.Bool(false),
		},
	}
}

func auditRecords(t *testing.T, f *fixture, paneID string) []storage.AuditAction {
	t.Helper()
	records, err := f.store.GetAuditLog(paneID, 100)
	require.NoError(t, err)
	return records
}

func TestSendTextAllowedWritesAndAudits(t *testing.T) {
	f := newFixture(t)

	res := f.injector.SendText(context.Background(), safeRequest(), "continue\n")

	assert.Equal(t, StatusAllowed, res.Status)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.AuditActionID)
	assert.Equal(t, []string{"continue\n"}, f.panes.SentInputs("pane-1"))

	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.Equal(t, "allow", records[0].PolicyDecision)
	assert.Equal(t, "send_text", records[0].ActionKind)
	assert.Equal(t, "ok", records[0].Result)
	assert.Equal(t, res.AuditActionID, records[0].ID)
}

func TestSendTextDeniedOnForeignReservation(t *testing.T) {
	f := newFixture(t)

	req := safeRequest()
	req.ActorID = "owner_B"
	req.Capabilities.IsReserved = true
	req.Capabilities.ReservedBy = "owner_A"

	res := f.injector.SendText(context.Background(), req, "hello")

	assert.Equal(t, StatusDenied, res.Status)
	assert.Contains(t, res.Decision.Reason, "owner_A")
	assert.Empty(t, f.panes.SentInputs("pane-1"))

	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.Equal(t, "deny", records[0].PolicyDecision)
	assert.Equal(t, "blocked", records[0].Result)
}

func TestSendTextRequiresApprovalAttachesArtifact(t *testing.T) {
	f := newFixture(t)

	req := safeRequest()
	req.Capabilities.PromptActive = nil // unknown prompt state

	res := f.injector.SendText(context.Background(), req, "hello")

	assert.Equal(t, StatusRequiresApproval, res.Status)
	require.NotNil(t, res.Decision.Approval)
	assert.Contains(t, res.Decision.Approval.Command, "wa approve ")
	assert.Empty(t, f.panes.SentInputs("pane-1"))

	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.Equal(t, "require_approval", records[0].PolicyDecision)
	assert.Contains(t, records[0].DecisionContext, "wa approve")
}

func TestSendTextRedactsSummary(t *testing.T) {
	f := newFixture(t)

	secret := `api_key = "Zx8kQp2mNv7rTw4bHs6dJf9g"`
	res := f.injector.SendText(context.Background(), safeRequest(), secret)

	assert.NotContains(t, res.Summary, "Zx8kQp2mNv7rTw4bHs6dJf9g")
	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].InputSummary, "Zx8kQp2mNv7rTw4bHs6dJf9g")
	assert.Contains(t, records[0].InputSummary, "[REDACTED]")

	// The raw text still reaches the pane: redaction covers what leaves
	// the core, not what the operator's own workflow injects.
	assert.Equal(t, []string{secret}, f.panes.SentInputs("pane-1"))
}

func TestExecCommandDeniedByCommandGate(t *testing.T) {
	f := newFixture(t)

	res := f.injector.ExecCommand(context.Background(), safeRequest(), "rm -rf /")

	assert.Equal(t, StatusDenied, res.Status)
	assert.Empty(t, f.panes.SentInputs("pane-1"))
}

func TestExecCommandAllowedAppendsNewline(t *testing.T) {
	f := newFixture(t)

	res := f.injector.ExecCommand(context.Background(), safeRequest(), "ls")

	assert.Equal(t, StatusAllowed, res.Status)
	assert.Equal(t, []string{"ls\n"}, f.panes.SentInputs("pane-1"))
}

func TestDryRunSkipsEffectButAudits(t *testing.T) {
	f := newFixture(t)
	f.injector.DryRun = true

	res := f.injector.SendText(context.Background(), safeRequest(), "hello")

	assert.Equal(t, StatusAllowed, res.Status)
	assert.Empty(t, f.panes.SentInputs("pane-1"))

	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.Equal(t, "dry_run", records[0].Result)
}

func TestReserveAndReleasePane(t *testing.T) {
	f := newFixture(t)

	req := safeRequest()
	req.ActorID = "runner-1"

	res := f.injector.ReservePane(context.Background(), req, "workflow", time.Minute)
	require.Equal(t, StatusAllowed, res.Status)
	require.NoError(t, res.Err)

	mgr := &reservation.Manager{Storage: f.store}
	active, err := mgr.GetActive("pane-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "runner-1", active.OwnerID)

	rel := f.injector.ReleasePane(context.Background(), req, active.ID)
	require.Equal(t, StatusAllowed, rel.Status)
	require.NoError(t, rel.Err)

	active, err = mgr.GetActive("pane-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestReserveConflictSurfacesAsEffectError(t *testing.T) {
	f := newFixture(t)

	reqA := safeRequest()
	reqA.ActorID = "owner_A"
	require.Equal(t, StatusAllowed, f.injector.ReservePane(context.Background(), reqA, "", time.Minute).Status)

	reqB := safeRequest()
	reqB.ActorID = "owner_B"
	res := f.injector.ReservePane(context.Background(), reqB, "", time.Minute)

	assert.Equal(t, StatusAllowed, res.Status)
	assert.ErrorIs(t, res.Err, storage.ErrReservationConflict)
}

func TestAuthorizeWorkflowPerformsNoSideEffect(t *testing.T) {
	f := newFixture(t)

	res := f.injector.AuthorizeWorkflow(context.Background(), safeRequest(), "usage-limit-wait")

	assert.Equal(t, StatusAllowed, res.Status)
	assert.Empty(t, f.panes.SentInputs("pane-1"))

	records := auditRecords(t, f, "pane-1")
	require.Len(t, records, 1)
	assert.Equal(t, "workflow_run", records[0].ActionKind)
}

func TestSendTextEffectFailureStillAllowedAndAudited(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	db, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	panes := paneio.NewMockPaneIO(ctrl)
	panes.EXPECT().GetPane(gomock.Any(), "pane-1").
		Return(paneio.PaneInfo{PaneID: "pane-1"}, nil)
	panes.EXPECT().SendText(gomock.Any(), "pane-1", "hello").
		Return(errors.New("pty closed"))

	cfg := policy.DefaultConfig()
	cfg.RatePerPane = rate.Inf
	cfg.RateGlobal = rate.Inf
	inj := &Injector{Policy: policy.NewEngine(cfg), Panes: panes, Audit: db}

	res := inj.SendText(context.Background(), safeRequest(), "hello")

	assert.Equal(t, StatusAllowed, res.Status)
	require.Error(t, res.Err)

	records, err := db.GetAuditLog("pane-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "allow", records[0].PolicyDecision)
	assert.Contains(t, records[0].Result, "error:")
}

func TestSingleExitSingleAuditPerCall(t *testing.T) {
	f := newFixture(t)

	calls := []func() Result{
		func() Result { return f.injector.SendText(context.Background(), safeRequest(), "a") },
		func() Result { return f.injector.ExecCommand(context.Background(), safeRequest(), "rm -rf /") },
		func() Result {
			req := safeRequest()
			req.Capabilities.InGap = true
			return f.injector.SendText(context.Background(), req, "b")
		},
	}

	for i, call := range calls {
		before := len(auditRecords(t, f, "pane-1"))
		res := call()
		after := auditRecords(t, f, "pane-1")
		require.Len(t, after, before+1, "call %d", i)
		assert.Equal(t, string(res.Decision.Kind), after[len(after)-1].PolicyDecision, "call %d", i)
	}
}
