package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/panecaps"
	"github.com/wa-observability/wa/pkg/paneio"
	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/reservation"
)

type runnerFixture struct {
	runner *Runner
	panes  *paneio.MemoryAdapter
}

func newRunnerFixture(t *testing.T, cfg policy.Config) *runnerFixture {
	t.Helper()

	panes := paneio.NewMemoryAdapter()
	panes.AddPane(paneio.PaneInfo{PaneID: "pane-1"})

	inj := &inject.Injector{
		Policy: policy.NewEngine(cfg),
		Panes:  panes,
	}
	return &runnerFixture{
		runner: &Runner{Locks: reservation.NewLockManager(), Injector: inj},
		panes:  panes,
	}
}

func permissiveConfig() policy.Config {
	cfg := policy.DefaultConfig()
	cfg.RatePerPane = rate.Inf
	cfg.RateGlobal = rate.Inf
	return cfg
}

func safeWorkflowRequest() inject.Request {
	return inject.Request{
		PaneID: "pane-1",
		Actor:  policy.ActorRobot,
		Capabilities: panecaps.Capabilities{
			PromptActive: panecaps.Bool(true),
			AltScreen:    panecaps.Bool(false),
		},
	}
}

func pureStep(name string, out string) Step {
	return Step{Name: name, Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
		env.Output = append(env.Output, out)
		return nil, nil
	}}
}

func TestRunCompletesAllSteps(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "two-steps", RequiresPane: true},
		pureStep("one", "a"),
		pureStep("two", "b"),
	)

	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.StepsExecuted)
	assert.Equal(t, "a\nb", res.Result)
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestRunReturnsBusyWhenPaneLocked(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	lock, err := f.runner.Locks.TryLock("pane-1")
	require.NoError(t, err)
	defer lock.Release()

	wf := New(Meta{Name: "w", RequiresPane: true}, pureStep("s", "x"))
	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, "pane busy", res.Reason)
}

func TestRunPolicyDeniedStopsAtStep(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "w", RequiresPane: true},
		pureStep("ok", "fine"),
		Step{Name: "bad", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			res := env.Injector.ExecCommand(ctx, env.Request, "rm -rf /")
			return &res, nil
		}},
		pureStep("never", "unreached"),
	)

	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusPolicyDenied, res.Status)
	assert.Equal(t, 1, res.StepIndex)
	assert.Equal(t, 1, res.StepsExecuted)
	assert.Contains(t, res.Reason, "command gate")
	assert.False(t, f.runner.Locks.Held("pane-1"))
	assert.Empty(t, f.panes.SentInputs("pane-1"))
}

func TestRunRequireApprovalAborts(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "w", RequiresPane: true},
		Step{Name: "gap-write", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			req := env.Request
			req.Capabilities.InGap = true
			res := env.Injector.SendText(ctx, req, "hello")
			return &res, nil
		}},
	)

	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusAborted, res.Status)
	assert.Contains(t, res.Reason, "approval required")
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestRunDeniedAtWorkflowAuthorization(t *testing.T) {
	cfg := permissiveConfig()
	cfg.Rules = []policy.Rule{
		{Name: "no-workflows", Action: policy.ActionWorkflowRun, Pattern: "*", Effect: policy.DecisionDeny, Reason: "workflows disabled"},
	}
	f := newRunnerFixture(t, cfg)

	wf := New(Meta{Name: "w", RequiresPane: true}, pureStep("s", "x"))
	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusPolicyDenied, res.Status)
	assert.Equal(t, "workflows disabled", res.Reason)
	assert.Equal(t, 0, res.StepsExecuted)
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestRunStepErrorIsFatal(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	boom := errors.New("boom")
	wf := New(Meta{Name: "w", RequiresPane: true},
		pureStep("ok", "fine"),
		Step{Name: "explode", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			return nil, boom
		}},
	)

	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 1, res.StepIndex)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestRunStepAbortIsClean(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "w", RequiresPane: true},
		Step{Name: "precondition", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			return nil, Abort("not ready")
		}},
	)

	res := f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, "not ready", res.Reason)
	assert.Nil(t, res.Err)
}

func TestRunCancelledBetweenSteps(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	ctx, cancel := context.WithCancel(context.Background())
	wf := New(Meta{Name: "w", RequiresPane: true},
		Step{Name: "first", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			cancel() // cancellation lands after this step's work
			return nil, nil
		}},
		pureStep("never", "unreached"),
	)

	res := f.runner.Run(ctx, safeWorkflowRequest(), wf, "exec-1", 0)

	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, "cancelled", res.Reason)
	assert.Equal(t, 1, res.StepIndex)
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestRunRequiresPane(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "w", RequiresPane: true}, pureStep("s", "x"))
	req := safeWorkflowRequest()
	req.PaneID = ""

	res := f.runner.Run(context.Background(), req, wf, "exec-1", 0)
	assert.Equal(t, StatusError, res.Status)
}

func TestRunReleasesLockOnPanic(t *testing.T) {
	f := newRunnerFixture(t, permissiveConfig())

	wf := New(Meta{Name: "w", RequiresPane: true},
		Step{Name: "panic", Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
			panic("step blew up")
		}},
	)

	assert.Panics(t, func() {
		f.runner.Run(context.Background(), safeWorkflowRequest(), wf, "exec-1", 0)
	})
	assert.False(t, f.runner.Locks.Held("pane-1"))
}

func TestEngineRegisterAndFind(t *testing.T) {
	e := NewEngine()

	wf := New(Meta{Name: "alpha"}, pureStep("s", "x"))
	require.NoError(t, e.Register(wf))
	assert.Error(t, e.Register(wf), "duplicate names are rejected")
	assert.Error(t, e.Register(New(Meta{})), "empty names are rejected")

	got, ok := e.FindByName("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Meta().Name)

	_, ok = e.FindByName("missing")
	assert.False(t, ok)

	require.NoError(t, e.Register(New(Meta{Name: "zeta"}, pureStep("s", "x"))))
	require.NoError(t, e.Register(New(Meta{Name: "beta"}, pureStep("s", "x"))))

	var names []string
	for _, w := range e.List() {
		names = append(names, w.Meta().Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, names)
}
