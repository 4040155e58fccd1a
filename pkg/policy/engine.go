// Package policy decides allow / deny / require-approval for every side
// effect attempted against a pane, combining config-supplied rule
// overrides, capability gates, a command gate, and rate limits.
package policy

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wa-observability/wa/pkg/redact"
)

// maxPaneLimiters bounds the per-pane limiter map; the least recently
// created limiter is evicted once the bound is reached.
const maxPaneLimiters = 4096

// Engine evaluates authorization requests. Configuration is immutable
// once built; only the rate-limit counters mutate, and those are
// serialized behind the engine's own lock so a single shared Engine is
// safe under the multi-pane concurrency model.
type Engine struct {
	cfg Config

	mu         sync.Mutex
	global     *rate.Limiter
	perPane    map[string]*rate.Limiter
	paneOrder  []string
}

// NewEngine builds a policy engine from cfg, filling zero-valued rate
// fields from DefaultConfig.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.RatePerPane == 0 {
		cfg.RatePerPane = def.RatePerPane
	}
	if cfg.BurstPerPane == 0 {
		cfg.BurstPerPane = def.BurstPerPane
	}
	if cfg.RateGlobal == 0 {
		cfg.RateGlobal = def.RateGlobal
	}
	if cfg.BurstGlobal == 0 {
		cfg.BurstGlobal = def.BurstGlobal
	}

	return &Engine{
		cfg:     cfg,
		global:  rate.NewLimiter(cfg.RateGlobal, cfg.BurstGlobal),
		perPane: make(map[string]*rate.Limiter),
	}
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// RedactSecrets returns text safe for Input.TextSummary, audit records,
// and traces.
func (e *Engine) RedactSecrets(text string) string {
	return redact.Redact(text)
}

// Authorize runs the decision pipeline, first applicable gate wins:
//
//  1. config rule overrides (an explicit deny short-circuits)
//  2. capability gates, for pane-writing actions
//  3. command gate, for SendText / ExecCommand
//  4. per-pane and global rate limits
//  5. allow
func (e *Engine) Authorize(input Input) Decision {
	if d, ok := e.applyRules(input); ok {
		return d
	}

	if input.Action.writesToPane() {
		if d, ok := e.applyCapabilityGates(input); ok {
			return d
		}

		verdict := e.cfg.CommandGate.CheckCommand(input.CommandText)
		switch verdict.Class {
		case GateDeny:
			return Deny(fmt.Sprintf("command gate blocked command (%s)", verdict.Condition))
		case GateApprove:
			return RequireApproval(fmt.Sprintf("command gate flagged command (%s)", verdict.Condition))
		}
	}

	if d, ok := e.applyRateLimits(input); ok {
		return d
	}

	return Allow("policy passed")
}

func (e *Engine) applyRules(input Input) (Decision, bool) {
	for _, r := range e.cfg.Rules {
		if r.Action != "" && r.Action != input.Action {
			continue
		}
		if r.Pattern != "" &&
			!matchGlob(r.Pattern, input.CommandText) &&
			!matchGlob(r.Pattern, input.TextSummary) {
			continue
		}

		reason := r.Reason
		if reason == "" {
			reason = fmt.Sprintf("policy rule %q matched", r.Name)
		}
		switch r.Effect {
		case DecisionDeny:
			return Deny(reason), true
		case DecisionRequireApproval:
			return RequireApproval(reason), true
		case DecisionAllow:
			// An explicit allow skips the remaining rules but still runs
			// the capability, command, and rate gates.
			return Decision{}, false
		}
	}
	return Decision{}, false
}

func (e *Engine) applyCapabilityGates(input Input) (Decision, bool) {
	caps := input.Capabilities

	// A foreign reservation is an outright deny regardless of the other
	// gates: the reserver holds exclusive write authority.
	if caps.IsReserved && input.ActorID != caps.ReservedBy {
		return Deny(fmt.Sprintf("pane %s is reserved by %s", input.PaneID, caps.ReservedBy)), true
	}

	if e.cfg.RequirePromptActive && !caps.PromptKnownActive() {
		return RequireApproval("pane prompt state is not known to be active"), true
	}
	if caps.AltScreenKnownActive() {
		return RequireApproval("pane is in alt-screen mode; a full-screen app may consume writes unsafely"), true
	}
	if caps.InGap {
		return RequireApproval("recent capture gap; pane state cannot be verified"), true
	}
	return Decision{}, false
}

func (e *Engine) applyRateLimits(input Input) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if input.PaneID != "" {
		limiter := e.paneLimiterLocked(input.PaneID)
		if !limiter.Allow() {
			return Deny(fmt.Sprintf("rate limit exceeded for pane %s", input.PaneID)), true
		}
	}
	if !e.global.Allow() {
		return Deny("global rate limit exceeded"), true
	}
	return Decision{}, false
}

func (e *Engine) paneLimiterLocked(paneID string) *rate.Limiter {
	if limiter, ok := e.perPane[paneID]; ok {
		return limiter
	}
	if len(e.paneOrder) >= maxPaneLimiters {
		oldest := e.paneOrder[0]
		e.paneOrder = e.paneOrder[1:]
		delete(e.perPane, oldest)
	}
	limiter := rate.NewLimiter(e.cfg.RatePerPane, e.cfg.BurstPerPane)
	e.perPane[paneID] = limiter
	e.paneOrder = append(e.paneOrder, paneID)
	return limiter
}
