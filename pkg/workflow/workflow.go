// Package workflow registers and executes step-based remediation
// workflows against panes, coordinating with the injector for policy and
// the lock manager for per-pane exclusivity.
package workflow

import (
	"context"

	"github.com/wa-observability/wa/pkg/engine"
	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/patterns"
)

// Meta is the capability set a workflow advertises for dispatch and
// display.
type Meta struct {
	Name                string
	Description         string
	TriggerEventTypes   []string
	TriggerRuleIDs      []string
	SupportedAgentTypes []patterns.AgentType
	RequiresPane        bool
	RequiresApproval    bool
	CanAbort            bool
	Destructive         bool
}

// Env is what a step executes against: the injector (the only path to
// side effects), the pane, and the detection that triggered the run.
type Env struct {
	Injector  *inject.Injector
	Request   inject.Request
	Detection *engine.Detection

	// Output accumulates the human-readable result of the execution;
	// steps append lines.
	Output []string
}

// AbortError is returned by a step to stop the execution cleanly (as
// Aborted, not Error) when its preconditions are not met.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return "workflow aborted: " + e.Reason
}

// Abort builds an AbortError.
func Abort(reason string) error {
	return &AbortError{Reason: reason}
}

// Step is one unit of a workflow. Run performs the step, returning the
// injection result when the step went through the injector (nil for pure
// transforms) and an error only for fatal step failures.
type Step struct {
	Name string
	Run  func(ctx context.Context, env *Env) (*inject.Result, error)
}

// Workflow is a named, ordered step sequence with dispatch metadata.
type Workflow interface {
	Meta() Meta
	Steps() []Step
}

// StepCount returns how many steps a workflow has.
func StepCount(w Workflow) int {
	return len(w.Steps())
}

// definition is the plain struct most workflows are built from.
type definition struct {
	meta  Meta
	steps []Step
}

func (d *definition) Meta() Meta    { return d.meta }
func (d *definition) Steps() []Step { return d.steps }

// New builds a workflow from metadata and steps.
func New(meta Meta, steps ...Step) Workflow {
	return &definition{meta: meta, steps: steps}
}
