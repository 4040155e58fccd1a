package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/wa-observability/wa/pkg/inject"
	"github.com/wa-observability/wa/pkg/paneio"
	"github.com/wa-observability/wa/pkg/patterns"
)

// RegisterBuiltins registers the built-in remediation workflows.
func RegisterBuiltins(e *Engine) error {
	for _, w := range []Workflow{
		UsageLimitWait(),
		AutoCompactAck(),
		AuthReauthPrompt(),
	} {
		if err := e.Register(w); err != nil {
			return err
		}
	}
	return nil
}

// usageLimitPromptTimeout bounds how long the usage-limit workflow waits
// for the agent to quiesce back to a prompt before giving up.
const usageLimitPromptTimeout = 30 * time.Second

// UsageLimitWait reacts to usage-limit-reached detections: note the reset
// time, wait for the agent's prompt to come back, then nudge the session
// to continue.
func UsageLimitWait() Workflow {
	return New(
		Meta{
			Name:        "usage-limit-wait",
			Description: "Wait out a usage limit and resume the session",
			TriggerRuleIDs: []string{
				"codex.usage.reached",
				"claude_code.usage.reached",
				"gemini.usage.reached",
			},
			TriggerEventTypes: []string{"usage.reached"},
			RequiresPane:      true,
			CanAbort:          true,
		},
		Step{
			Name: "note-reset-time",
			Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
				reset := "unknown"
				if env.Detection != nil {
					if v, ok := env.Detection.Extracted["reset_time"]; ok {
						reset = v
					}
				}
				env.Output = append(env.Output, "usage limit reached; reset at "+reset)
				return nil, nil
			},
		},
		Step{
			Name: "await-prompt",
			Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
				res, err := env.Injector.Panes.WaitFor(ctx, env.Request.PaneID,
					paneio.Matcher{Substring: "\n"}, paneio.WaitOptions{}, usageLimitPromptTimeout)
				if err != nil {
					return nil, err
				}
				if res.TimedOut {
					return nil, Abort("pane produced no output before the wait timeout")
				}
				env.Output = append(env.Output, fmt.Sprintf("pane settled after %dms (%d polls)", res.ElapsedMs, res.Polls))
				return nil, nil
			},
		},
		Step{
			Name: "resume-session",
			Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
				res := env.Injector.SendText(ctx, env.Request, "continue\n")
				if res.Status == inject.StatusAllowed {
					env.Output = append(env.Output, "sent continue")
				}
				return &res, res.Err
			},
		},
	)
}

// AutoCompactAck acknowledges a context-compaction notice: it records the
// before/after token counts so the event trail shows the session shrank,
// and injects nothing.
func AutoCompactAck() Workflow {
	return New(
		Meta{
			Name:              "auto-compact-ack",
			Description:       "Acknowledge a conversation compaction notice",
			TriggerRuleIDs:    []string{"claude_code.compaction"},
			TriggerEventTypes: []string{"session.compaction"},
			SupportedAgentTypes: []patterns.AgentType{
				patterns.AgentClaudeCode,
			},
			RequiresPane: true,
		},
		Step{
			Name: "record-compaction",
			Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
				before, after := "?", "?"
				if env.Detection != nil {
					if v, ok := env.Detection.Extracted["tokens_before"]; ok {
						before = v
					}
					if v, ok := env.Detection.Extracted["tokens_after"]; ok {
						after = v
					}
				}
				env.Output = append(env.Output, fmt.Sprintf("conversation compacted %s tokens to %s", before, after))
				return nil, nil
			},
		},
	)
}

// AuthReauthPrompt surfaces a re-authentication requirement to the
// operator. Credentials are never typed on the operator's behalf; the
// workflow's only output is the instruction.
func AuthReauthPrompt() Workflow {
	return New(
		Meta{
			Name:        "auth-reauth-prompt",
			Description: "Surface a re-authentication prompt to the operator",
			TriggerRuleIDs: []string{
				"codex.auth.device_code_prompt",
				"claude_code.auth.api_key_error",
				"claude_code.auth.login_required",
			},
			TriggerEventTypes: []string{"auth.login_required", "auth.api_key_error", "auth.device_code_prompt"},
			RequiresPane:      true,
			RequiresApproval:  true,
		},
		Step{
			Name: "surface-instruction",
			Run: func(ctx context.Context, env *Env) (*inject.Result, error) {
				instruction := "re-authentication required; complete the login flow manually"
				if env.Detection != nil {
					if code, ok := env.Detection.Extracted["code"]; ok {
						instruction = "re-authentication required; enter device code " + code + " in the browser"
					}
				}
				env.Output = append(env.Output, instruction)
				return nil, nil
			},
		},
	)
}
