// Package patterns defines detection rules and the ordered pack merge that
// produces a deterministic PatternLibrary for the detection engine.
package patterns

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// AgentType identifies which coding agent a rule or detection context
// applies to.
type AgentType string

const (
	AgentCodex     AgentType = "codex"
	AgentClaudeCode AgentType = "claude_code"
	AgentGemini    AgentType = "gemini"
	AgentWezterm   AgentType = "wezterm"
	AgentUnknown   AgentType = "unknown"
)

// Severity classifies how urgently a detection should be surfaced.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// trustedPrefixes are the agent-namespaced prefixes a builtin-pack rule id
// must start with.
var trustedPrefixes = []string{"codex.", "claude_code.", "gemini.", "wezterm."}

// RuleDef is a single detection rule.
type RuleDef struct {
	ID          string
	AgentType   AgentType
	EventType   string
	Severity    Severity
	Anchors     []string
	Regex       string
	Workflow    string
	Description string
	Remediation string
	ManualFix   string
	PreviewCommand string
	LearnMoreURL   string

	compiled *regexp.Regexp
}

// Compiled returns the rule's pre-compiled regex, or nil if it has none.
func (r *RuleDef) Compiled() *regexp.Regexp {
	return r.compiled
}

// Validate checks a rule's structural invariants. trusted controls whether
// the id must start with a recognized agent prefix (builtin packs) or only
// needs to contain a dot (user packs).
func (r *RuleDef) Validate(trusted bool) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if trusted {
		ok := false
		for _, p := range trustedPrefixes {
			if strings.HasPrefix(r.ID, p) {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("rule %q: trusted-pack rule ids must start with one of %v", r.ID, trustedPrefixes)
		}
	} else if !strings.Contains(r.ID, ".") {
		return fmt.Errorf("rule %q: user-pack rule ids must contain at least one dot", r.ID)
	}

	if len(r.Anchors) == 0 {
		return fmt.Errorf("rule %q: anchors must be non-empty", r.ID)
	}
	for _, a := range r.Anchors {
		if a == "" {
			return fmt.Errorf("rule %q: anchors must not contain an empty string", r.ID)
		}
	}

	if r.Regex != "" {
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return fmt.Errorf("rule %q: regex does not compile: %w", r.ID, err)
		}
		r.compiled = re
	}

	return nil
}

// PatternPack is a named, versioned set of rules.
type PatternPack struct {
	Name    string
	Version string
	Rules   []RuleDef
}

// Validate checks pack-level invariants (non-empty name/version, no
// duplicate rule ids) and every contained rule.
func (p *PatternPack) Validate(trusted bool) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("pack name must not be empty")
	}
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("pack %q: version must not be empty", p.Name)
	}
	seen := make(map[string]bool, len(p.Rules))
	for i := range p.Rules {
		r := &p.Rules[i]
		if seen[r.ID] {
			return fmt.Errorf("pack %q: duplicate rule id %q", p.Name, r.ID)
		}
		seen[r.ID] = true
		if err := r.Validate(trusted); err != nil {
			return fmt.Errorf("pack %q: %w", p.Name, err)
		}
	}
	return nil
}

// PackOverride disables rules or overrides severities for a named pack
// before library construction.
type PackOverride struct {
	PackName         string
	DisableRules     []string
	SeverityOverrides map[string]Severity
}

// Library is the merged, sorted, validated set of rules produced by Build.
type Library struct {
	rules      []RuleDef
	packForID  map[string]string
}

// Rules returns the merged rules, sorted by id.
func (l *Library) Rules() []RuleDef {
	return l.rules
}

// PackForRule returns the name of the pack that last defined rule id, if any.
func (l *Library) PackForRule(id string) (string, bool) {
	name, ok := l.packForID[id]
	return name, ok
}

// Build merges packs in order (later packs override earlier packs by rule
// id, whole-rule replacement), validates every rule, applies overrides, and
// returns a library with rules sorted deterministically by id.
//
// trustedPackNames identifies packs whose rule ids must carry a recognized
// agent prefix; packs not in that set are treated as user packs (ids need
// only contain a dot).
func Build(packs []PatternPack, trustedPackNames map[string]bool, overrides []PackOverride) (*Library, error) {
	merged := make(map[string]RuleDef)
	owner := make(map[string]string)

	for _, pack := range packs {
		trusted := trustedPackNames[pack.Name]
		p := pack
		if err := p.Validate(trusted); err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
		for _, r := range p.Rules {
			merged[r.ID] = r
			owner[r.ID] = p.Name
		}
	}

	if err := applyOverrides(merged, owner, overrides); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := make([]RuleDef, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, merged[id])
	}

	return &Library{rules: rules, packForID: owner}, nil
}

func applyOverrides(merged map[string]RuleDef, owner map[string]string, overrides []PackOverride) error {
	for _, ov := range overrides {
		canonical := canonicalPackName(ov.PackName)
		matched := false
		for id, packName := range owner {
			if canonicalPackName(packName) != canonical {
				continue
			}
			matched = true
			for _, disabled := range ov.DisableRules {
				if disabled == id {
					delete(merged, id)
					delete(owner, id)
				}
			}
			if sev, ok := ov.SeverityOverrides[id]; ok {
				if r, exists := merged[id]; exists {
					r.Severity = sev
					merged[id] = r
				}
			}
		}
		if !matched {
			return fmt.Errorf("invalid rule: override references unknown pack %q", ov.PackName)
		}
	}
	return nil
}

func canonicalPackName(name string) string {
	return strings.TrimPrefix(name, "builtin:")
}
