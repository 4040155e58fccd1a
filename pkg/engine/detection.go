// Package engine compiles a pattern library into a read-only index (Aho-
// Corasick anchor automaton + Bloom quick-reject + compiled regex
// extractors) and detects rule matches over streaming pane text.
package engine

import (
	"sort"
	"strings"

	"github.com/wa-observability/wa/pkg/patterns"
)

// Detection is a match produced by the engine.
type Detection struct {
	RuleID      string
	AgentType   patterns.AgentType
	EventType   string
	Severity    patterns.Severity
	Confidence  float64
	Extracted   map[string]string
	MatchedText string
	SpanStart   int
	SpanEnd     int
}

// DedupKey returns rule_id || ":" || sorted("k:v") joined with "|" over
// Extracted, the stable key used by detectctx for TTL-bounded dedup.
func (d Detection) DedupKey() string {
	if len(d.Extracted) == 0 {
		return d.RuleID + ":"
	}
	keys := make([]string, 0, len(d.Extracted))
	for k := range d.Extracted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+d.Extracted[k])
	}
	return d.RuleID + ":" + strings.Join(parts, "|")
}
