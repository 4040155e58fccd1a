package patterns

// BuiltinPacks returns the built-in pattern packs (codex, claude_code,
// gemini, wezterm), ported from the reference implementation's rule
// catalogue. Callers wire these into a Loader's Builtins map keyed by the
// short name used in `builtin:<name>` references.
func BuiltinPacks() map[string]PatternPack {
	return map[string]PatternPack{
		"codex":       builtinCodexPack(),
		"claude_code": builtinClaudeCodePack(),
		"gemini":      builtinGeminiPack(),
		"wezterm":     builtinWeztermPack(),
	}
}

func builtinCodexPack() PatternPack {
	return PatternPack{
		Name:    "builtin:codex",
		Version: "0.1.0",
		Rules: []RuleDef{
			{
				ID:          "codex.usage.warning_25",
				AgentType:   AgentCodex,
				EventType:   "usage.warning",
				Severity:    SeverityInfo,
				Anchors:     []string{"less than 25%"},
				Regex:       `(?P<remaining>\d+)% of your (?P<limit_hours>\d+)h limit remaining`,
				Description: "Codex usage below 25% remaining",
			},
			{
				ID:          "codex.usage.warning_10",
				AgentType:   AgentCodex,
				EventType:   "usage.warning",
				Severity:    SeverityWarning,
				Anchors:     []string{"less than 10%"},
				Regex:       `(?P<remaining>\d+)% of your (?P<limit_hours>\d+)h limit remaining`,
				Description: "Codex usage below 10% remaining",
				Remediation: "Consider pausing work soon",
			},
			{
				ID:          "codex.usage.warning_5",
				AgentType:   AgentCodex,
				EventType:   "usage.warning",
				Severity:    SeverityWarning,
				Anchors:     []string{"less than 5%"},
				Regex:       `(?P<remaining>\d+)% of your (?P<limit_hours>\d+)h limit remaining`,
				Description: "Codex usage below 5% remaining",
				Remediation: "Pause non-critical work",
			},
			{
				ID:          "codex.usage.reached",
				AgentType:   AgentCodex,
				EventType:   "usage.reached",
				Severity:    SeverityCritical,
				Anchors:     []string{"usage limit", "try again at"},
				Regex:       `try again at (?P<reset_time>[^.]+)`,
				Description: "Codex usage limit reached",
				Remediation: "Wait for the usage window to reset or switch accounts",
				Workflow:    "usage-limit-wait",
			},
			{
				ID:          "codex.session.token_usage",
				AgentType:   AgentCodex,
				EventType:   "session.token_usage",
				Severity:    SeverityInfo,
				Anchors:     []string{"Token usage:"},
				Regex:       `Token usage:\s*(?P<tokens>[\d,]+)`,
				Description: "Codex token usage report",
			},
			{
				ID:          "codex.session.resume_hint",
				AgentType:   AgentCodex,
				EventType:   "session.resume_hint",
				Severity:    SeverityInfo,
				Anchors:     []string{"codex resume"},
				Regex:       `codex resume\s+(?P<session_id>[0-9a-fA-F-]+)`,
				Description: "Codex session resume hint",
			},
			{
				ID:          "codex.auth.device_code_prompt",
				AgentType:   AgentCodex,
				EventType:   "auth.device_code_prompt",
				Severity:    SeverityWarning,
				Anchors:     []string{"enter the code", "device code"},
				Regex:       `(?P<code>[A-Z0-9]{4}-[A-Z0-9]{5})`,
				Description: "Codex device-code authentication prompt",
				Workflow:    "auth-reauth-prompt",
			},
		},
	}
}

func builtinClaudeCodePack() PatternPack {
	return PatternPack{
		Name:    "builtin:claude_code",
		Version: "0.1.0",
		Rules: []RuleDef{
			{
				ID:          "claude_code.compaction",
				AgentType:   AgentClaudeCode,
				EventType:   "session.compaction",
				Severity:    SeverityInfo,
				Anchors:     []string{"compacted", "summarized"},
				Regex:       `(?:compacted|summarized)\s+(?P<tokens_before>[\d,]+)\s+tokens?\s+to\s+(?P<tokens_after>[\d,]+)`,
				Description: "Claude Code conversation compaction",
				Workflow:    "auto-compact-ack",
			},
			{
				ID:          "claude_code.banner",
				AgentType:   AgentClaudeCode,
				EventType:   "session.start",
				Severity:    SeverityInfo,
				Anchors:     []string{"Claude Code v", "claude-code/"},
				Regex:       `Claude Code v(?P<version>[\d.]+)`,
				Description: "Claude Code session banner",
			},
			{
				ID:          "claude_code.usage.warning",
				AgentType:   AgentClaudeCode,
				EventType:   "usage.warning",
				Severity:    SeverityWarning,
				Anchors:     []string{"usage limit", "remaining"},
				Regex:       `(?P<remaining>\d+)%?\s*(?:remaining|left|of limit)`,
				Description: "Claude Code usage warning",
			},
			{
				ID:          "claude_code.usage.reached",
				AgentType:   AgentClaudeCode,
				EventType:   "usage.reached",
				Severity:    SeverityCritical,
				Anchors:     []string{"usage limit reached"},
				Regex:       `(?:retry|reset|try again).*?(?P<reset_time>\d+\s*(?:seconds?|minutes?|hours?)|[\d:]+\s*(?:AM|PM|UTC))`,
				Description: "Claude Code usage limit reached",
				Remediation: "Wait for reset or switch accounts",
				Workflow:    "usage-limit-wait",
			},
			{
				ID:          "claude_code.session.cost_summary",
				AgentType:   AgentClaudeCode,
				EventType:   "session.cost_summary",
				Severity:    SeverityInfo,
				Anchors:     []string{"Total cost:", "Session cost:"},
				Regex:       `(?:Total|Session)\s+cost:\s*\$(?P<cost>[\d.]+)`,
				Description: "Claude Code session cost summary",
			},
			{
				ID:          "claude_code.auth.api_key_error",
				AgentType:   AgentClaudeCode,
				EventType:   "auth.api_key_error",
				Severity:    SeverityCritical,
				Anchors:     []string{"invalid api key", "authentication_error"},
				Description: "Claude Code API key rejected",
				Workflow:    "auth-reauth-prompt",
			},
			{
				ID:          "claude_code.auth.login_required",
				AgentType:   AgentClaudeCode,
				EventType:   "auth.login_required",
				Severity:    SeverityWarning,
				Anchors:     []string{"To sign in", "login required", "please authenticate", "auth required"},
				Description: "Claude Code login/authentication required via browser",
				Remediation: "Complete authentication in the browser window",
				ManualFix:   "Open the provided URL in a browser and complete the login flow",
				Workflow:    "auth-reauth-prompt",
			},
			{
				ID:          "claude_code.tool_use",
				AgentType:   AgentClaudeCode,
				EventType:   "session.tool_use",
				Severity:    SeverityInfo,
				Anchors:     []string{"Using tool", "Tool call:", "Executing:"},
				Regex:       `(?:Using tool|Tool call|Executing)[:\s]+(?P<tool_name>Bash|Read|Write|Edit|Glob|Grep|Task|WebFetch|WebSearch|TodoWrite|NotebookEdit)`,
				Description: "Claude Code tool invocation",
			},
			{
				ID:          "claude_code.approval_needed",
				AgentType:   AgentClaudeCode,
				EventType:   "session.approval_needed",
				Severity:    SeverityWarning,
				Anchors:     []string{"Approve?", "Allow?", "Permission", "Do you want"},
				Regex:       `(?P<action>run|execute|write|delete|send|allow|proceed).*?\?`,
				Description: "Claude Code approval/permission prompt",
				Remediation: "User input required for approval",
			},
			{
				ID:          "claude_code.context.warning",
				AgentType:   AgentClaudeCode,
				EventType:   "context.warning",
				Severity:    SeverityWarning,
				Anchors:     []string{"context window", "context limit", "running low on context"},
				Regex:       `(?P<percent>\d+)%?\s*(?:of context|context (?:used|remaining))`,
				Description: "Claude Code context window warning",
				Remediation: "Consider compacting or starting a new session",
			},
			{
				ID:          "claude_code.error.network",
				AgentType:   AgentClaudeCode,
				EventType:   "error.network",
				Severity:    SeverityCritical,
				Anchors:     []string{"connection", "network error", "failed to connect", "ECONNREFUSED"},
				Regex:       `(?:connection|network)\s+(?:error|failed|refused|timeout|closed)`,
				Description: "Claude Code network/connection error",
				Remediation: "Check network connectivity and retry",
			},
			{
				ID:          "claude_code.error.overloaded",
				AgentType:   AgentClaudeCode,
				EventType:   "error.overloaded",
				Severity:    SeverityWarning,
				Anchors:     []string{"overloaded_error", "Overloaded"},
				Description: "Claude Code API reported overload",
				Remediation: "Retry with backoff",
			},
		},
	}
}

func builtinGeminiPack() PatternPack {
	return PatternPack{
		Name:    "builtin:gemini",
		Version: "0.1.0",
		Rules: []RuleDef{
			{
				ID:        "gemini.usage.warning",
				AgentType: AgentGemini,
				EventType: "usage.warning",
				Severity:  SeverityWarning,
				Anchors: []string{
					"Usage limit warning",
					"approaching your usage limit",
					"usage limit approaching",
				},
				Regex:       `(?:Usage limit (?:warning|approaching)|approaching your usage limit|usage limit approaching)[^\n]*?(?P<remaining>\d+)%\s+of\s+your\s+Pro\s+models?\s+quota\s+remaining`,
				Description: "Gemini usage limit approaching",
				Remediation: "Consider switching models or accounts soon",
			},
			{
				ID:        "gemini.usage.reached",
				AgentType: AgentGemini,
				EventType: "usage.reached",
				Severity:  SeverityCritical,
				Anchors: []string{
					"Usage limit reached for all Pro models",
					"Usage limit reached for Pro models",
					"Usage limit reached for your Pro models",
				},
				Description: "Gemini usage limit reached",
				Remediation: "Wait for limit reset or switch model",
				ManualFix:   "Switch to a non-Pro model or wait for quota reset",
				Workflow:    "usage-limit-wait",
			},
			{
				ID:          "gemini.session.summary",
				AgentType:   AgentGemini,
				EventType:   "session.summary",
				Severity:    SeverityInfo,
				Anchors:     []string{"Interaction Summary", "Session Summary"},
				Regex:       `Session ID:\s*(?P<session_id>[0-9a-fA-F-]+)[\s\S]*?Tool Calls:\s*(?P<tool_calls>\d+)`,
				Description: "Gemini session summary with statistics",
			},
			{
				ID:          "gemini.session.resume_hint",
				AgentType:   AgentGemini,
				EventType:   "session.resume_hint",
				Severity:    SeverityInfo,
				Anchors:     []string{"gemini resume", "gemini --resume"},
				Regex:       `gemini (?:--)?resume\s+(?P<session_id>[0-9a-fA-F-]+)`,
				Description: "Gemini session resume hint",
			},
		},
	}
}

func builtinWeztermPack() PatternPack {
	return PatternPack{
		Name:    "builtin:wezterm",
		Version: "0.1.0",
		Rules: []RuleDef{
			{
				ID:          "wezterm.mux.connection_lost",
				AgentType:   AgentWezterm,
				EventType:   "mux.error",
				Severity:    SeverityCritical,
				Anchors:     []string{"mux server", "connection lost", "disconnected"},
				Description: "WezTerm mux server connection lost",
				Remediation: "Check WezTerm mux server status",
			},
			{
				ID:          "wezterm.pane.exited",
				AgentType:   AgentWezterm,
				EventType:   "pane.exited",
				Severity:    SeverityInfo,
				Anchors:     []string{"pane exited", "shell exited", "process exited"},
				Regex:       `(?:exit(?:ed)?|status)[:\s]+(?P<exit_code>\d+)`,
				Description: "WezTerm pane process exited",
			},
		},
	}
}
