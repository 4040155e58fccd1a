package patterns

import "strings"

// Interpolate substitutes {pane}, {event_id}, {agent}, and {rule_id} tokens
// in an informational field (description, remediation, preview_command,
// etc.) with concrete values.
func Interpolate(text, pane, eventID, agent, ruleID string) string {
	r := strings.NewReplacer(
		"{pane}", pane,
		"{event_id}", eventID,
		"{agent}", agent,
		"{rule_id}", ruleID,
	)
	return r.Replace(text)
}
