package engine

import (
	"sort"
	"time"

	"github.com/wa-observability/wa/pkg/detectctx"
	"github.com/wa-observability/wa/pkg/redact"
)

// TraceOptions bounds what a detection trace may carry. Excerpts are
// redacted and truncated before they enter the trace, so traces are safe
// to persist and display.
type TraceOptions struct {
	// IncludeNonMatches also emits traces for candidate rules whose anchor
	// hit but whose regex did not match.
	IncludeNonMatches bool
	// MaxExcerptBytes bounds the matched-text excerpt (default 160).
	MaxExcerptBytes int
	// MaxCaptureBytes bounds each named-capture excerpt (default 120).
	MaxCaptureBytes int
	// MaxEvidence bounds how many capture excerpts one trace carries
	// (default 8).
	MaxEvidence int
}

func (o TraceOptions) excerptBytes() int {
	if o.MaxExcerptBytes > 0 {
		return o.MaxExcerptBytes
	}
	return 160
}

func (o TraceOptions) captureBytes() int {
	if o.MaxCaptureBytes > 0 {
		return o.MaxCaptureBytes
	}
	return 120
}

func (o TraceOptions) evidence() int {
	if o.MaxEvidence > 0 {
		return o.MaxEvidence
	}
	return 8
}

// TraceGate records one gate's verdict for a candidate.
type TraceGate struct {
	Name   string
	Passed bool
}

// TraceCapture is one redacted, bounded named-capture excerpt.
type TraceCapture struct {
	Name    string
	Excerpt string
}

// Trace explains what happened to one candidate detection: which anchor
// fired, where the match (if any) landed, and which gates it passed.
type Trace struct {
	RuleID      string
	AnchorHit   string
	Matched     bool
	Emitted     bool
	SpanStart   int
	SpanEnd     int
	MatchedText string
	Captures    []TraceCapture
	Gates       []TraceGate
}

// DetectWithContextAndTrace runs the same pipeline as DetectWithContext
// while recording a trace per candidate. Candidate rules that matched
// nothing appear only when opts.IncludeNonMatches is set.
func (e *Engine) DetectWithContextAndTrace(text string, ctx *detectctx.Context, opts TraceOptions) ([]Detection, []Trace) {
	return e.detectWithContextAndTraceAt(text, ctx, opts, time.Now())
}

func (e *Engine) detectWithContextAndTraceAt(text string, ctx *detectctx.Context, opts TraceOptions, now time.Time) ([]Detection, []Trace) {
	combined := ctx.TailBuffer() + text
	overlapLen := len(ctx.TailBuffer())
	ctx.SetTailBuffer(combined)

	all := e.Detect(combined)

	var kept []Detection
	var traces []Trace
	for _, d := range all {
		trace := Trace{
			RuleID:      d.RuleID,
			AnchorHit:   truncate(redact.Redact(d.MatchedText), opts.excerptBytes()),
			Matched:     true,
			SpanStart:   d.SpanStart,
			SpanEnd:     d.SpanEnd,
			MatchedText: truncate(redact.Redact(d.MatchedText), opts.excerptBytes()),
			Captures:    captureExcerpts(d.Extracted, opts),
		}

		overlapOK := d.SpanEnd > overlapLen
		trace.Gates = append(trace.Gates, TraceGate{Name: "overlap", Passed: overlapOK})

		agentOK := overlapOK && passesAgentGate(d, ctx.AgentType)
		if overlapOK {
			trace.Gates = append(trace.Gates, TraceGate{Name: "agent_type", Passed: agentOK})
		}

		dedupOK := agentOK && ctx.MarkSeen(d.DedupKey(), now)
		if agentOK {
			trace.Gates = append(trace.Gates, TraceGate{Name: "dedupe", Passed: dedupOK})
		}

		trace.Gates = append(trace.Gates, TraceGate{Name: "match", Passed: true})
		trace.Emitted = dedupOK
		traces = append(traces, trace)

		if dedupOK {
			kept = append(kept, d)
		}
	}

	if opts.IncludeNonMatches {
		traces = append(traces, e.nonMatchTraces(combined, all, opts)...)
	}

	return kept, traces
}

// nonMatchTraces emits a trace per candidate rule whose anchor hit the
// text but which produced no detection (a regex rule whose extractor did
// not match).
func (e *Engine) nonMatchTraces(text string, detections []Detection, opts TraceOptions) []Trace {
	idx := e.compiled()
	if idx.quickReject(text) {
		return nil
	}

	emitted := make(map[string]bool, len(detections))
	for _, d := range detections {
		emitted[d.RuleID] = true
	}

	firstHit := make(map[int]anchorHit)
	for _, hit := range e.scanAnchors(idx, text) {
		for _, ri := range idx.anchorToRules[hit.anchor] {
			if _, ok := firstHit[ri]; !ok {
				firstHit[ri] = hit
			}
		}
	}

	ruleIndices := make([]int, 0, len(firstHit))
	for ri := range firstHit {
		ruleIndices = append(ruleIndices, ri)
	}
	sort.Ints(ruleIndices)

	var traces []Trace
	for _, ri := range ruleIndices {
		rule := idx.rules[ri]
		if emitted[rule.ID] {
			continue
		}
		hit := firstHit[ri]
		traces = append(traces, Trace{
			RuleID:    rule.ID,
			AnchorHit: truncate(redact.Redact(hit.anchor), opts.excerptBytes()),
			Matched:   false,
			Gates:     []TraceGate{{Name: "match", Passed: false}},
		})
	}
	return traces
}

func captureExcerpts(extracted map[string]string, opts TraceOptions) []TraceCapture {
	if len(extracted) == 0 {
		return nil
	}
	names := make([]string, 0, len(extracted))
	for name := range extracted {
		names = append(names, name)
	}
	sort.Strings(names)

	limit := opts.evidence()
	var out []TraceCapture
	for _, name := range names {
		if len(out) >= limit {
			break
		}
		out = append(out, TraceCapture{
			Name:    name,
			Excerpt: truncate(redact.Redact(extracted[name]), opts.captureBytes()),
		})
	}
	return out
}

// truncate bounds s to maxBytes, backing up to a UTF-8 rune boundary.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && s[end]&0xC0 == 0x80 {
		end--
	}
	return s[:end]
}
