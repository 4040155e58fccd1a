package policy

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/wa-observability/wa/pkg/panecaps"
)

// ActionKind identifies the side effect an actor is attempting.
type ActionKind string

const (
	ActionSendText    ActionKind = "send_text"
	ActionExecCommand ActionKind = "exec_command"
	ActionWorkflowRun ActionKind = "workflow_run"
	ActionReservePane ActionKind = "reserve_pane"
	ActionReleasePane ActionKind = "release_pane"
)

// writesToPane reports whether the action injects bytes into a pane and is
// therefore subject to the capability gates.
func (a ActionKind) writesToPane() bool {
	return a == ActionSendText || a == ActionExecCommand
}

// ActorKind identifies who is attempting an action.
type ActorKind string

const (
	ActorRobot    ActorKind = "robot"
	ActorMcp      ActorKind = "mcp"
	ActorOperator ActorKind = "operator"
)

// Input is the authorization request evaluated by Engine.Authorize.
// TextSummary must already be redacted (see Engine.RedactSecrets); the
// engine never redacts on the caller's behalf.
type Input struct {
	Action       ActionKind
	Actor        ActorKind
	ActorID      string
	PaneID       string
	Domain       string
	Capabilities panecaps.Capabilities
	TextSummary  string
	CommandText  string
	PaneTitle    string
	PaneCwd      string
	RuleID       string
}

// DecisionKind is the outcome class of an authorization.
type DecisionKind string

const (
	DecisionAllow           DecisionKind = "allow"
	DecisionDeny            DecisionKind = "deny"
	DecisionRequireApproval DecisionKind = "require_approval"
)

// ApprovalArtifact is attached to a RequireApproval decision by the
// approval store: the operator command that grants approval, plus the
// pending request's id and expiry.
type ApprovalArtifact struct {
	Command   string
	ID        string
	ExpiresAt time.Time
}

// Decision is the result of authorizing one Input. Approval is populated
// only for RequireApproval decisions, and only after the approval store
// has attached an artifact.
type Decision struct {
	Kind     DecisionKind
	Reason   string
	Approval *ApprovalArtifact
}

// Allow builds an allow decision.
func Allow(reason string) Decision {
	return Decision{Kind: DecisionAllow, Reason: reason}
}

// Deny builds a deny decision.
func Deny(reason string) Decision {
	return Decision{Kind: DecisionDeny, Reason: reason}
}

// RequireApproval builds a require-approval decision with no artifact yet.
func RequireApproval(reason string) Decision {
	return Decision{Kind: DecisionRequireApproval, Reason: reason}
}

// Rule is a config-supplied decision override evaluated before every other
// gate. Action scopes the rule to one action kind ("" matches all);
// Pattern is a glob matched against the input's command text and text
// summary.
type Rule struct {
	Name    string       `json:"name" yaml:"name"`
	Action  ActionKind   `json:"action,omitempty" yaml:"action,omitempty"`
	Pattern string       `json:"pattern" yaml:"pattern"`
	Effect  DecisionKind `json:"effect" yaml:"effect"`
	Reason  string       `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Config is the engine's immutable configuration.
type Config struct {
	// RatePerPane and BurstPerPane bound how fast any single pane may be
	// written to; RateGlobal and BurstGlobal bound the whole process.
	RatePerPane rate.Limit
	BurstPerPane int
	RateGlobal  rate.Limit
	BurstGlobal int

	// RequirePromptActive, when true, requires positive knowledge of an
	// active shell prompt before any pane write is allowed.
	RequirePromptActive bool

	CommandGate CommandGateConfig
	Rules       []Rule
}

// DefaultConfig returns conservative defaults: one write per second per
// pane (burst 3), ten per second globally (burst 20), prompt gating on.
func DefaultConfig() Config {
	return Config{
		RatePerPane:         rate.Limit(1),
		BurstPerPane:        3,
		RateGlobal:          rate.Limit(10),
		BurstGlobal:         20,
		RequirePromptActive: true,
		CommandGate:         DefaultCommandGateConfig(),
	}
}
