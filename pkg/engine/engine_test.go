package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wa-observability/wa/pkg/detectctx"
	"github.com/wa-observability/wa/pkg/patterns"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	return e
}

func TestDetectEmptyText(t *testing.T) {
	e := newEngine(t)
	assert.Empty(t, e.Detect(""))
}

func TestDetectCodexUsageLimit(t *testing.T) {
	e := newEngine(t)

	detections := e.Detect("You've hit your usage limit. Please try again at 2:30 PM.")

	require.Len(t, detections, 1)
	d := detections[0]
	assert.Equal(t, "codex.usage.reached", d.RuleID)
	assert.Equal(t, patterns.SeverityCritical, d.Severity)
	assert.Equal(t, map[string]string{"reset_time": "2:30 PM"}, d.Extracted)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
}

func TestDetectAnchorOnlyConfidence(t *testing.T) {
	e := newEngine(t)

	detections := e.Detect("request failed: overloaded_error")

	require.Len(t, detections, 1)
	assert.Equal(t, "claude_code.error.overloaded", detections[0].RuleID)
	assert.InDelta(t, 0.6, detections[0].Confidence, 1e-9)
	assert.Empty(t, detections[0].Extracted)
}

func TestDetectDeterministic(t *testing.T) {
	e := newEngine(t)
	text := "You've hit your usage limit. Please try again at 2:30 PM.\nToken usage: 12,345"

	first := e.Detect(text)
	second := e.Detect(text)

	assert.Equal(t, first, second)
	require.GreaterOrEqual(t, len(first), 2)
	// Emitted in rule-index (id-sorted) order.
	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].RuleID, first[i].RuleID)
	}
}

func TestDetectRegexAnchorHitWithoutMatchIsSilent(t *testing.T) {
	e := newEngine(t)

	// The compaction anchor is present but the extractor regex cannot
	// complete without the token counts.
	detections := e.Detect("Conversation compacted 150,")
	assert.Empty(t, detections)
}

func TestConcurrentFirstUseCompilesOnce(t *testing.T) {
	e := newEngine(t)
	text := "You've hit your usage limit. Please try again at 2:30 PM."

	var wg sync.WaitGroup
	results := make([][]Detection, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Detect(text)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestDetectWithContextCrossSegmentCompaction(t *testing.T) {
	e := newEngine(t)
	ctx := detectctx.New("pane-1", "")

	first := e.DetectWithContext("Conversation compacted 150,", ctx)
	assert.Empty(t, first)

	second := e.DetectWithContext("000 tokens to 25,000 tokens", ctx)
	require.Len(t, second, 1)
	assert.Equal(t, "claude_code.compaction", second[0].RuleID)
	assert.Equal(t, "150,000", second[0].Extracted["tokens_before"])
	assert.Equal(t, "25,000", second[0].Extracted["tokens_after"])
}

func TestDetectWithContextDropsOverlapOnlyDetections(t *testing.T) {
	e := newEngine(t)
	ctx := detectctx.New("pane-1", "")
	ctx.TTL = time.Nanosecond // neutralize dedup so only the overlap filter acts

	text := "You've hit your usage limit. Please try again at 2:30 PM.\n"
	require.Len(t, e.DetectWithContext(text, ctx), 1)

	// The next segment re-presents only already-seen bytes via the tail
	// buffer; the detection's span lies entirely in the overlap.
	again := e.DetectWithContext("", ctx)
	assert.Empty(t, again)
}

func TestDetectWithContextSplitNeverDuplicatesOrLoses(t *testing.T) {
	e := newEngine(t)
	text := "You've hit your usage limit. Please try again at 2:30 PM."
	whole := e.Detect(text)
	require.Len(t, whole, 1)

	for split := 1; split < len(text)-1; split++ {
		ctx := detectctx.New("pane-1", "")
		var got []Detection
		got = append(got, e.DetectWithContext(text[:split], ctx)...)
		got = append(got, e.DetectWithContext(text[split:], ctx)...)

		// The full-text detection appears exactly once, whatever the
		// split. A partial extractor match from the first segment may
		// appear alongside it; it must never displace the full match.
		full := 0
		for _, d := range got {
			if d.RuleID == whole[0].RuleID && assert.ObjectsAreEqual(whole[0].Extracted, d.Extracted) {
				full++
			}
		}
		assert.Equal(t, 1, full, "split at %d: %#v", split, got)
	}
}

func TestDetectWithContextDedupWithinTTL(t *testing.T) {
	e := newEngine(t)
	ctx := detectctx.New("pane-1", "")
	text := "You've hit your usage limit. Please try again at 2:30 PM."

	first := e.detectWithContextAt(text, ctx, time.Now())
	require.Len(t, first, 1)

	ctx.SetTailBuffer("") // isolate dedup from the overlap filter
	second := e.detectWithContextAt(text, ctx, time.Now())
	assert.Empty(t, second)

	// Past the TTL the same detection is new again.
	ctx.SetTailBuffer("")
	third := e.detectWithContextAt(text, ctx, time.Now().Add(detectctx.DefaultTTL+time.Second))
	assert.Len(t, third, 1)
}

func TestDetectWithContextAgentGate(t *testing.T) {
	e := newEngine(t)
	text := "You've hit your usage limit. Please try again at 2:30 PM."

	claudeCtx := detectctx.New("pane-1", patterns.AgentClaudeCode)
	assert.Empty(t, e.DetectWithContext(text, claudeCtx))

	codexCtx := detectctx.New("pane-2", patterns.AgentCodex)
	assert.Len(t, e.DetectWithContext(text, codexCtx), 1)

	unknownCtx := detectctx.New("pane-3", patterns.AgentUnknown)
	assert.Len(t, e.DetectWithContext(text, unknownCtx), 1)
}

func TestDetectWithContextWeztermRulesAlwaysPass(t *testing.T) {
	e := newEngine(t)

	ctx := detectctx.New("pane-1", patterns.AgentClaudeCode)
	detections := e.DetectWithContext("mux server connection lost", ctx)

	require.Len(t, detections, 1)
	assert.Equal(t, "wezterm.mux.connection_lost", detections[0].RuleID)
}

func TestQuickRejectNoFirstBytes(t *testing.T) {
	e := newEngine(t)
	idx := e.compiled()

	// No byte of this text starts any builtin anchor, so the Level-1 scan
	// finds nothing to query and rejects without an automaton pass.
	text := "0000 0000 0000"
	assert.True(t, idx.quickReject(text))
	assert.Empty(t, e.Detect(text))
}

func TestQuickRejectNeverFalseNegative(t *testing.T) {
	e := newEngine(t)
	idx := e.compiled()

	for _, rule := range e.Library().Rules() {
		for _, anchor := range rule.Anchors {
			text := "xx " + anchor + " yy"
			assert.False(t, idx.quickReject(text), "anchor %q", anchor)
		}
	}
}

func TestQuickRejectImpliesNoDetections(t *testing.T) {
	e := newEngine(t)
	idx := e.compiled()

	samples := []string{
		"0000 0000",
		"zzzz@@@@",
		"qqq qqq qqq",
		"!!??!!",
	}
	for _, text := range samples {
		if idx.quickReject(text) {
			assert.Empty(t, e.Detect(text), "text %q", text)
		}
	}
}

func TestFromConfigBuiltinsAndOverrides(t *testing.T) {
	cfg := Config{
		Packs: []string{"builtin:codex", "builtin:claude_code"},
		Overrides: []patterns.PackOverride{
			{
				PackName:     "builtin:codex",
				DisableRules: []string{"codex.session.token_usage"},
				SeverityOverrides: map[string]patterns.Severity{
					"codex.usage.reached": patterns.SeverityWarning,
				},
			},
		},
	}

	e, err := FromConfig(cfg, FromConfigOptions{Root: t.TempDir(), HomeDir: t.TempDir()})
	require.NoError(t, err)

	rules := e.Library().Rules()
	byID := make(map[string]patterns.RuleDef, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	_, disabled := byID["codex.session.token_usage"]
	assert.False(t, disabled)
	assert.Equal(t, patterns.SeverityWarning, byID["codex.usage.reached"].Severity)

	_, hasGemini := byID["gemini.usage.reached"]
	assert.False(t, hasGemini, "packs not named in config are not loaded")
}

func TestFromConfigUnknownBuiltin(t *testing.T) {
	_, err := FromConfig(Config{Packs: []string{"builtin:nope"}}, FromConfigOptions{Root: t.TempDir(), HomeDir: t.TempDir()})
	assert.Error(t, err)
}

func TestFromConfigDiscoversUserPack(t *testing.T) {
	root := t.TempDir()
	patternsDir := filepath.Join(root, ".wa", "patterns")
	require.NoError(t, os.MkdirAll(patternsDir, 0o755))

	pack := `
name = "team-pack"
version = "1.0.0"

[[rules]]
id = "team.deploy.finished"
agent_type = "unknown"
event_type = "deploy.finished"
severity = "info"
anchors = ["Deploy finished"]
`
	require.NoError(t, os.WriteFile(filepath.Join(patternsDir, "team.toml"), []byte(pack), 0o644))

	e, err := FromConfig(Config{Packs: []string{"builtin:codex"}}, FromConfigOptions{Root: root, HomeDir: t.TempDir()})
	require.NoError(t, err)

	detections := e.Detect("Deploy finished in 42s")
	require.Len(t, detections, 1)
	assert.Equal(t, "team.deploy.finished", detections[0].RuleID)

	pack2, ok := e.Library().PackForRule("team.deploy.finished")
	require.True(t, ok)
	assert.Equal(t, "team-pack", pack2)
}

func TestFromConfigSkipsMalformedUserPack(t *testing.T) {
	root := t.TempDir()
	patternsDir := filepath.Join(root, ".wa", "patterns")
	require.NoError(t, os.MkdirAll(patternsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patternsDir, "broken.toml"), []byte("not = [valid"), 0o644))

	var warnings []string
	e, err := FromConfig(Config{Packs: []string{"builtin:codex"}}, FromConfigOptions{
		Root:    root,
		HomeDir: t.TempDir(),
		Warn:    func(msg string) { warnings = append(warnings, msg) },
	})
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.NotEmpty(t, e.Library().Rules())
}

func TestDedupKeyStable(t *testing.T) {
	d := Detection{
		RuleID:    "codex.usage.reached",
		Extracted: map[string]string{"b": "2", "a": "1"},
	}
	assert.Equal(t, "codex.usage.reached:a:1|b:2", d.DedupKey())

	empty := Detection{RuleID: "r.x"}
	assert.Equal(t, "r.x:", empty.DedupKey())
}
