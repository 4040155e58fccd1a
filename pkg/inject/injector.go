// Package inject is the single chokepoint through which every side effect
// on a pane flows: build a policy input, authorize, perform the effect on
// allow, and record an audit record for every outcome.
package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wa-observability/wa/pkg/logging"
	"github.com/wa-observability/wa/pkg/panecaps"
	"github.com/wa-observability/wa/pkg/paneio"
	"github.com/wa-observability/wa/pkg/policy"
	"github.com/wa-observability/wa/pkg/storage"
)

// Status classifies an injection outcome.
type Status string

const (
	StatusAllowed          Status = "allowed"
	StatusDenied           Status = "denied"
	StatusRequiresApproval Status = "requires_approval"
)

// Result reports exactly one outcome per injector call, alongside the
// policy decision that produced it and the id of the audit record written
// for it.
type Result struct {
	Status        Status
	Decision      policy.Decision
	Summary       string
	PaneID        string
	Action        policy.ActionKind
	AuditActionID string

	// Err carries the PaneIO failure for allowed actions whose side
	// effect itself failed; the policy outcome is still Allowed.
	Err error
}

// AuditSink is the slice of storage the injector writes audit records to.
type AuditSink interface {
	RecordAuditAction(a *storage.AuditAction) (string, error)
}

// ApprovalAttacher attaches approval artifacts to require-approval
// decisions; pkg/approval.Store implements it.
type ApprovalAttacher interface {
	AttachToDecision(d policy.Decision, input policy.Input, textSummary string) (policy.Decision, error)
}

// ReservationOps is the slice of the reservation manager the injector
// needs for ReservePane / ReleasePane.
type ReservationOps interface {
	Create(paneID, ownerKind, ownerID, reason string, ttl time.Duration) (*storage.Reservation, error)
	Release(id string) (bool, error)
}

// Request carries the per-call parameters shared by all injector methods.
type Request struct {
	PaneID       string
	Actor        policy.ActorKind
	ActorID      string
	Capabilities panecaps.Capabilities
	RuleID       string
	CorrelationID string
}

// Injector authorizes and performs pane side effects. All collaborators
// are passed inward; the injector never reaches around the policy engine.
type Injector struct {
	Policy       *policy.Engine
	Panes        paneio.PaneIO
	Audit        AuditSink
	Approvals    ApprovalAttacher
	Reservations ReservationOps
	Log          *logging.Logger

	// DryRun skips the PaneIO side effect on allow but still authorizes
	// and audits, with the audit result marked dry_run.
	DryRun bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

// SendText authorizes and performs a text write to a pane.
func (inj *Injector) SendText(ctx context.Context, req Request, text string) Result {
	summary := inj.Policy.RedactSecrets(text)
	input := inj.buildInput(ctx, policy.ActionSendText, req, summary, text)

	return inj.perform(input, req, func() error {
		return inj.Panes.SendText(ctx, req.PaneID, text)
	})
}

// ExecCommand authorizes and performs a command execution in a pane (the
// command text plus a newline).
func (inj *Injector) ExecCommand(ctx context.Context, req Request, command string) Result {
	summary := inj.Policy.RedactSecrets(command)
	input := inj.buildInput(ctx, policy.ActionExecCommand, req, summary, command)

	return inj.perform(input, req, func() error {
		return inj.Panes.SendText(ctx, req.PaneID, command+"\n")
	})
}

// ReservePane authorizes and creates a persistent reservation. The
// created reservation (when allowed) is returned through the audit trail
// and the reservation manager; callers needing the lease itself query the
// manager.
func (inj *Injector) ReservePane(ctx context.Context, req Request, reason string, ttl time.Duration) Result {
	summary := fmt.Sprintf("reserve pane %s for %s", req.PaneID, req.ActorID)
	input := inj.buildInput(ctx, policy.ActionReservePane, req, summary, "")

	return inj.perform(input, req, func() error {
		if inj.Reservations == nil {
			return fmt.Errorf("inject: no reservation manager wired")
		}
		_, err := inj.Reservations.Create(req.PaneID, string(req.Actor), req.ActorID, reason, ttl)
		return err
	})
}

// ReleasePane authorizes and releases a reservation by id.
func (inj *Injector) ReleasePane(ctx context.Context, req Request, reservationID string) Result {
	summary := fmt.Sprintf("release reservation %s", reservationID)
	input := inj.buildInput(ctx, policy.ActionReleasePane, req, summary, "")

	return inj.perform(input, req, func() error {
		if inj.Reservations == nil {
			return fmt.Errorf("inject: no reservation manager wired")
		}
		_, err := inj.Reservations.Release(reservationID)
		return err
	})
}

// AuthorizeWorkflow authorizes a workflow run without performing any side
// effect; the workflow runner calls this before its first step.
func (inj *Injector) AuthorizeWorkflow(ctx context.Context, req Request, workflowName string) Result {
	summary := fmt.Sprintf("run workflow %s", workflowName)
	input := inj.buildInput(ctx, policy.ActionWorkflowRun, req, summary, "")

	return inj.perform(input, req, func() error { return nil })
}

func (inj *Injector) buildInput(ctx context.Context, action policy.ActionKind, req Request, summary, command string) policy.Input {
	input := policy.Input{
		Action:       action,
		Actor:        req.Actor,
		ActorID:      req.ActorID,
		PaneID:       req.PaneID,
		Capabilities: req.Capabilities,
		TextSummary:  summary,
		CommandText:  command,
		RuleID:       req.RuleID,
	}
	if inj.Panes != nil && req.PaneID != "" {
		if info, err := inj.Panes.GetPane(ctx, req.PaneID); err == nil {
			input.Domain = info.InferredDomain()
			input.PaneTitle = info.Title
			input.PaneCwd = info.Cwd
		}
	}
	return input
}

// perform runs the shared authorize → effect → audit pipeline. Exactly
// one Result is returned and exactly one audit record is written per
// call, whatever the decision.
func (inj *Injector) perform(input policy.Input, req Request, effect func() error) Result {
	decision := inj.Policy.Authorize(input)

	result := Result{
		Decision: decision,
		Summary:  input.TextSummary,
		PaneID:   input.PaneID,
		Action:   input.Action,
	}
	auditResult := "ok"

	switch decision.Kind {
	case policy.DecisionAllow:
		result.Status = StatusAllowed
		if inj.DryRun {
			auditResult = "dry_run"
		} else if err := effect(); err != nil {
			result.Err = err
			auditResult = "error: " + inj.Policy.RedactSecrets(err.Error())
		}
	case policy.DecisionDeny:
		result.Status = StatusDenied
		auditResult = "blocked"
	case policy.DecisionRequireApproval:
		result.Status = StatusRequiresApproval
		auditResult = "pending"
		if inj.Approvals != nil {
			attached, err := inj.Approvals.AttachToDecision(decision, input, input.TextSummary)
			if err != nil {
				inj.warn("approval_attach_failed", input, err)
			} else {
				decision = attached
				result.Decision = attached
			}
		}
	}

	result.AuditActionID = inj.recordAudit(input, req, decision, auditResult)
	return result
}

// recordAudit writes the audit record for one injector call. Audit
// failures are logged and swallowed: the action, not the audit trail, is
// the source of truth.
func (inj *Injector) recordAudit(input policy.Input, req Request, decision policy.Decision, auditResult string) string {
	if inj.Audit == nil {
		return ""
	}

	record := &storage.AuditAction{
		ID:             uuid.NewString(),
		TS:             inj.now(),
		ActorKind:      string(input.Actor),
		ActorID:        input.ActorID,
		CorrelationID:  req.CorrelationID,
		PaneID:         input.PaneID,
		Domain:         input.Domain,
		ActionKind:     string(input.Action),
		PolicyDecision: string(decision.Kind),
		DecisionReason: decision.Reason,
		RuleID:         input.RuleID,
		InputSummary:   input.TextSummary,
		Result:         auditResult,
	}
	if decision.Approval != nil {
		record.DecisionContext = "approval: " + decision.Approval.Command
	}

	id, err := inj.Audit.RecordAuditAction(record)
	if err != nil {
		inj.warn("audit_write_failed", input, err)
		return ""
	}
	return id
}

func (inj *Injector) warn(eventType string, input policy.Input, err error) {
	if inj.Log == nil {
		return
	}
	_ = inj.Log.Warn(logging.CategoryInjection, eventType, err.Error(), map[string]any{
		"pane_id": input.PaneID,
		"action":  string(input.Action),
	})
}

func (inj *Injector) now() time.Time {
	if inj.Now != nil {
		return inj.Now()
	}
	return time.Now().UTC()
}
