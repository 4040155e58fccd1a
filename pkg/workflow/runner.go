package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wa-observability/wa/pkg/engine"
	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/logging"
	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/reservation"
)

// ExecutionStatus is the terminal state of one workflow execution.
type ExecutionStatus string

const (
	StatusCompleted    ExecutionStatus = "completed"
	StatusAborted      ExecutionStatus = "aborted"
	StatusPolicyDenied ExecutionStatus = "policy_denied"
	StatusError        ExecutionStatus = "error"
)

// ExecutionResult reports how a workflow execution ended. StepIndex is
// the resumable cursor: the step at which the run stopped for aborts,
// denials, and errors.
type ExecutionResult struct {
	Status        ExecutionStatus
	Result        string
	Reason        string
	StepsExecuted int
	StepIndex     int
	Err           error

	// Approval carries the operator artifact when a step was stopped by a
	// require-approval decision.
	Approval *policy.ApprovalArtifact
}

// Runner executes workflows under per-pane locks. Every exit path
// releases the lock.
type Runner struct {
	Locks    *reservation.LockManager
	Injector *inject.Injector
	Log      *logging.Logger
}

// Run executes wf against the pane named in req. executionID correlates
// the run's audit records; retryCount is informational and logged.
func (r *Runner) Run(ctx context.Context, req inject.Request, wf Workflow, executionID string, retryCount int) ExecutionResult {
	return r.RunWithDetection(ctx, req, wf, nil, executionID, retryCount)
}

// RunWithDetection is Run with the triggering detection threaded into the
// step environment, used by the dispatcher.
func (r *Runner) RunWithDetection(ctx context.Context, req inject.Request, wf Workflow, detection *engine.Detection, executionID string, retryCount int) ExecutionResult {
	meta := wf.Meta()
	if meta.RequiresPane && req.PaneID == "" {
		return ExecutionResult{Status: StatusError, Err: fmt.Errorf("workflow %q requires a pane", meta.Name)}
	}

	lock, err := r.Locks.TryLock(req.PaneID)
	if errors.Is(err, reservation.ErrBusy) {
		return ExecutionResult{Status: StatusAborted, Reason: "pane busy"}
	}
	if err != nil {
		return ExecutionResult{Status: StatusError, Err: err}
	}
	defer lock.Release()

	req.CorrelationID = executionID
	r.info("workflow_started", meta.Name, req.PaneID, map[string]any{
		"execution_id": executionID,
		"retry_count":  retryCount,
	})

	auth := r.Injector.AuthorizeWorkflow(ctx, req, meta.Name)
	if res, stopped := stepOutcome(auth, 0); stopped {
		r.info("workflow_stopped", meta.Name, req.PaneID, map[string]any{"status": string(res.Status)})
		return res
	}

	env := &Env{Injector: r.Injector, Request: req, Detection: detection}
	steps := wf.Steps()
	for i, step := range steps {
		if ctx.Err() != nil {
			return ExecutionResult{Status: StatusAborted, Reason: "cancelled", StepIndex: i, StepsExecuted: i}
		}

		injRes, err := step.Run(ctx, env)
		if err != nil {
			var abort *AbortError
			if errors.As(err, &abort) {
				r.info("workflow_aborted", meta.Name, req.PaneID, map[string]any{"step": step.Name, "reason": abort.Reason})
				return ExecutionResult{Status: StatusAborted, Reason: abort.Reason, StepIndex: i, StepsExecuted: i}
			}
			r.info("workflow_step_failed", meta.Name, req.PaneID, map[string]any{"step": step.Name})
			return ExecutionResult{Status: StatusError, StepIndex: i, StepsExecuted: i, Err: err}
		}
		if injRes != nil {
			if res, stopped := stepOutcome(*injRes, i); stopped {
				res.StepsExecuted = i
				return res
			}
		}
	}

	result := strings.Join(env.Output, "\n")
	r.info("workflow_completed", meta.Name, req.PaneID, map[string]any{"steps": len(steps)})
	return ExecutionResult{Status: StatusCompleted, Result: result, StepsExecuted: len(steps), StepIndex: len(steps)}
}

// stepOutcome maps a denied or approval-gated injection onto the
// execution's terminal state; allowed injections do not stop the run.
func stepOutcome(res inject.Result, stepIndex int) (ExecutionResult, bool) {
	switch res.Status {
	case inject.StatusDenied:
		return ExecutionResult{
			Status:    StatusPolicyDenied,
			Reason:    res.Decision.Reason,
			StepIndex: stepIndex,
		}, true
	case inject.StatusRequiresApproval:
		return ExecutionResult{
			Status:    StatusAborted,
			Reason:    "approval required: " + res.Decision.Reason,
			StepIndex: stepIndex,
			Approval:  res.Decision.Approval,
		}, true
	default:
		return ExecutionResult{}, false
	}
}

func (r *Runner) info(eventType, workflowName, paneID string, details map[string]any) {
	if r.Log == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["workflow"] = workflowName
	details["pane_id"] = paneID
	_ = r.Log.Info(logging.CategoryWorkflow, eventType, "", details)
}
