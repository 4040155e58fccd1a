// Package dispatch maps detections onto workflows: a workflow triggers on
// an explicit rule id, or on an event type compatible with the
// detection's agent, and at most one workflow runs per detection.
package dispatch

import (
	"context"
	"sort"

	"github.com/wa-observability/wa/pkg/engine"
	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/logging"
	"github.com/wa-observability/wa/pkg/patterns"
	"github.com/wa-observability/wa/pkg/workflow"
)

// Dispatcher selects and runs workflows for detection batches. Dedup per
// (pane, rule) within the TTL is guaranteed upstream by the detection
// context, so the dispatcher runs whatever it is handed.
type Dispatcher struct {
	Workflows *workflow.Engine
	Runner    *workflow.Runner
	Log       *logging.Logger
}

// Outcome pairs a detection with the workflow execution it triggered.
type Outcome struct {
	Detection engine.Detection
	Workflow  string
	Result    workflow.ExecutionResult
}

// matches reports whether w triggers on d: an explicit rule-id binding,
// or an event-type binding whose supported agents include d's agent (an
// empty supported set means any agent).
func matches(w workflow.Workflow, d engine.Detection) (explicit bool, ok bool) {
	meta := w.Meta()
	for _, id := range meta.TriggerRuleIDs {
		if id == d.RuleID {
			return true, true
		}
	}
	for _, et := range meta.TriggerEventTypes {
		if et != d.EventType {
			continue
		}
		if len(meta.SupportedAgentTypes) == 0 {
			return false, true
		}
		for _, at := range meta.SupportedAgentTypes {
			if at == d.AgentType {
				return false, true
			}
		}
	}
	return false, false
}

// Select returns the single workflow to run for a detection, if any.
// Explicit rule-id bindings win over event-type bindings; remaining ties
// break by workflow name.
func (disp *Dispatcher) Select(d engine.Detection) (workflow.Workflow, bool) {
	type candidate struct {
		w        workflow.Workflow
		explicit bool
	}
	var candidates []candidate
	for _, w := range disp.Workflows.List() {
		if explicit, ok := matches(w, d); ok {
			candidates = append(candidates, candidate{w: w, explicit: explicit})
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].explicit != candidates[j].explicit {
			return candidates[i].explicit
		}
		return candidates[i].w.Meta().Name < candidates[j].w.Meta().Name
	})
	return candidates[0].w, true
}

// DispatchBatch selects and runs one workflow per detection, in detection
// order. Rule-bound workflows declared on the rule itself (RuleDef.Workflow)
// are honored through the trigger metadata registered with the engine.
func (disp *Dispatcher) DispatchBatch(ctx context.Context, req inject.Request, detections []engine.Detection) []Outcome {
	var outcomes []Outcome
	for _, d := range detections {
		w, ok := disp.Select(d)
		if !ok {
			continue
		}

		meta := w.Meta()
		disp.info("workflow_dispatched", req.PaneID, map[string]any{
			"workflow": meta.Name,
			"rule_id":  d.RuleID,
		})

		execReq := req
		execReq.RuleID = d.RuleID
		executionID := executionID(req.PaneID, d)
		result := disp.Runner.RunWithDetection(ctx, execReq, w, &d, executionID, 0)
		outcomes = append(outcomes, Outcome{Detection: d, Workflow: meta.Name, Result: result})
	}
	return outcomes
}

// executionID derives a stable correlation id for one dispatch.
func executionID(paneID string, d engine.Detection) string {
	return paneID + ":" + d.DedupKey()
}

// AgentGateFor mirrors the engine's agent gate for callers that dispatch
// detections produced without a context (plain Detect): infrastructure
// rules pass, unknown passes, otherwise agents must match.
func AgentGateFor(d engine.Detection, paneAgent patterns.AgentType) bool {
	if paneAgent == "" || paneAgent == patterns.AgentUnknown {
		return true
	}
	if d.AgentType == patterns.AgentWezterm {
		return true
	}
	return d.AgentType == paneAgent
}

func (disp *Dispatcher) info(eventType, paneID string, details map[string]any) {
	if disp.Log == nil {
		return
	}
	details["pane_id"] = paneID
	_ = disp.Log.Info(logging.CategoryDetection, eventType, "", details)
}
