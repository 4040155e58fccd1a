package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-observability/wa/pkg/detectctx"
	"github.com/wa-observability/wa/pkg/patterns"
)

// traceEngine builds an engine over a single test pack so traces are not
// polluted by builtin rules.
func traceEngine(t *testing.T, rules ...patterns.RuleDef) *Engine {
	t.Helper()
	pack := patterns.PatternPack{Name: "test.pack", Version: "1.0.0", Rules: rules}
	lib, err := patterns.Build([]patterns.PatternPack{pack}, nil, nil)
	require.NoError(t, err)
	return FromLibrary(lib)
}

func TestTraceRedactsSecrets(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "test.key_leak",
		AgentType: patterns.AgentUnknown,
		EventType: "key.leak",
		Severity:  patterns.SeverityCritical,
		Anchors:   []string{"Key:"},
		Regex:     `Key: (?P<key>\S+)`,
	})

	secret := "sk-" + strings.Repeat("Qx7kP2mZ", 6)
	ctx := detectctx.New("pane-1", "")
	detections, traces := e.DetectWithContextAndTrace("Key: "+secret, ctx, TraceOptions{})

	require.Len(t, detections, 1)
	require.Len(t, traces, 1)

	trace := traces[0]
	assert.True(t, trace.Emitted)
	assert.NotContains(t, trace.MatchedText, secret)
	assert.Contains(t, trace.MatchedText, "[REDACTED]")

	require.Len(t, trace.Captures, 1)
	assert.Equal(t, "key", trace.Captures[0].Name)
	assert.NotContains(t, trace.Captures[0].Excerpt, secret)
	assert.Contains(t, trace.Captures[0].Excerpt, "[REDACTED]")
}

func TestTraceGatesRecorded(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "codex.test.match",
		AgentType: patterns.AgentCodex,
		EventType: "test.match",
		Severity:  patterns.SeverityInfo,
		Anchors:   []string{"hello anchor"},
	})

	ctx := detectctx.New("pane-1", patterns.AgentCodex)
	_, traces := e.DetectWithContextAndTrace("hello anchor", ctx, TraceOptions{})
	require.Len(t, traces, 1)

	gates := map[string]bool{}
	for _, g := range traces[0].Gates {
		gates[g.Name] = g.Passed
	}
	assert.True(t, gates["overlap"])
	assert.True(t, gates["agent_type"])
	assert.True(t, gates["dedupe"])
	assert.True(t, gates["match"])

	// The same text again is stopped at the dedupe gate.
	ctx.SetTailBuffer("")
	_, traces = e.DetectWithContextAndTrace("hello anchor", ctx, TraceOptions{})
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Emitted)
	for _, g := range traces[0].Gates {
		if g.Name == "dedupe" {
			assert.False(t, g.Passed)
		}
	}
}

func TestTraceAgentGateFailure(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "codex.test.match",
		AgentType: patterns.AgentCodex,
		EventType: "test.match",
		Severity:  patterns.SeverityInfo,
		Anchors:   []string{"hello anchor"},
	})

	ctx := detectctx.New("pane-1", patterns.AgentClaudeCode)
	detections, traces := e.DetectWithContextAndTrace("hello anchor", ctx, TraceOptions{})

	assert.Empty(t, detections)
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Emitted)

	var sawAgentGate bool
	for _, g := range traces[0].Gates {
		if g.Name == "agent_type" {
			sawAgentGate = true
			assert.False(t, g.Passed)
		}
	}
	assert.True(t, sawAgentGate)
}

func TestTraceNonMatchesOnlyWhenRequested(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "test.needs_regex",
		AgentType: patterns.AgentUnknown,
		EventType: "x",
		Severity:  patterns.SeverityInfo,
		Anchors:   []string{"partial anchor"},
		Regex:     `partial anchor (?P<n>\d+)`,
	})

	ctx := detectctx.New("pane-1", "")
	detections, traces := e.DetectWithContextAndTrace("partial anchor only", ctx, TraceOptions{})
	assert.Empty(t, detections)
	assert.Empty(t, traces)

	ctx.ClearSeen()
	_, traces = e.DetectWithContextAndTrace("partial anchor only", ctx, TraceOptions{IncludeNonMatches: true})
	require.Len(t, traces, 1)
	assert.Equal(t, "test.needs_regex", traces[0].RuleID)
	assert.False(t, traces[0].Matched)
	assert.Equal(t, []TraceGate{{Name: "match", Passed: false}}, traces[0].Gates)
}

func TestTraceExcerptsBounded(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "test.long",
		AgentType: patterns.AgentUnknown,
		EventType: "x",
		Severity:  patterns.SeverityInfo,
		Anchors:   []string{"BEGIN"},
		Regex:     `BEGIN (?P<body>.+)`,
	})

	long := "BEGIN " + strings.Repeat("lorem ipsum ", 100)
	ctx := detectctx.New("pane-1", "")
	_, traces := e.DetectWithContextAndTrace(long, ctx, TraceOptions{MaxExcerptBytes: 40, MaxCaptureBytes: 20})

	require.Len(t, traces, 1)
	assert.LessOrEqual(t, len(traces[0].MatchedText), 40)
	require.Len(t, traces[0].Captures, 1)
	assert.LessOrEqual(t, len(traces[0].Captures[0].Excerpt), 20)
}

func TestTraceEvidenceCountBounded(t *testing.T) {
	e := traceEngine(t, patterns.RuleDef{
		ID:        "test.many_captures",
		AgentType: patterns.AgentUnknown,
		EventType: "x",
		Severity:  patterns.SeverityInfo,
		Anchors:   []string{"F:"},
		Regex:     `F:(?P<a>\d)(?P<b>\d)(?P<c>\d)(?P<d>\d)`,
	})

	ctx := detectctx.New("pane-1", "")
	_, traces := e.DetectWithContextAndTrace("F:1234", ctx, TraceOptions{MaxEvidence: 2})

	require.Len(t, traces, 1)
	assert.Len(t, traces[0].Captures, 2)
}

func TestTruncateRespectsRuneBoundary(t *testing.T) {
	s := "héllo wörld"
	out := truncate(s, 2)
	assert.LessOrEqual(t, len(out), 2)
	assert.True(t, len(out) == 1 || len(out) == 2)
	assert.Equal(t, "h", out[:1])
}
