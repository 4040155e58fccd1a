package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/wa-observability/wa/pkg/detectctx"
	"github.com/wa-observability/wa/pkg/patterns"
)

// Engine detects RuleDef matches over streaming pane text. An Engine is
// built once per process lifetime and is read-only after its first detect
// call: the EngineIndex is compiled lazily, exactly once, behind a
// sync.Once, so concurrent first-callers publish a single fully-constructed
// index and never duplicate the compile.
type Engine struct {
	library *patterns.Library

	once sync.Once
	idx  *index
}

// New builds an Engine over the built-in packs (codex, claude_code, gemini,
// wezterm) with no overrides. Compilation is lazy: the first Detect call
// triggers the index build.
func New() (*Engine, error) {
	builtins := patterns.BuiltinPacks()
	trusted := make(map[string]bool, len(builtins))
	packs := make([]patterns.PatternPack, 0, len(builtins))
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic pack ordering
	for _, name := range names {
		pack := builtins[name]
		packs = append(packs, pack)
		trusted[pack.Name] = true
	}

	lib, err := patterns.Build(packs, trusted, nil)
	if err != nil {
		return nil, err
	}
	return FromLibrary(lib), nil
}

// FromLibrary wraps an already-built library in a lazily-compiling Engine.
func FromLibrary(lib *patterns.Library) *Engine {
	return &Engine{library: lib}
}

// Library returns the engine's underlying pattern library.
func (e *Engine) Library() *patterns.Library {
	return e.library
}

// compiled returns the one-shot-compiled index, building it on first call.
func (e *Engine) compiled() *index {
	e.once.Do(func() {
		e.idx = buildIndex(e.library)
	})
	return e.idx
}

// Detect runs anchor-overlap matching over text, then for each candidate
// rule emits one Detection per regex match (with extracted captures) or,
// for anchor-only rules, one Detection per unique triggering anchor.
// Results are sorted by rule index for deterministic enumeration.
func (e *Engine) Detect(text string) []Detection {
	if text == "" {
		return nil
	}
	idx := e.compiled()
	if idx.quickReject(text) {
		return nil
	}

	candidateHits := e.scanAnchors(idx, text)
	if len(candidateHits) == 0 {
		return nil
	}

	type ruleHits struct {
		ruleIdx  int
		firstHit anchorHit
		allHits  []anchorHit
	}
	byRule := make(map[int]*ruleHits)
	for _, hit := range candidateHits {
		for _, ri := range idx.anchorToRules[hit.anchor] {
			rh, ok := byRule[ri]
			if !ok {
				rh = &ruleHits{ruleIdx: ri, firstHit: hit}
				byRule[ri] = rh
			}
			rh.allHits = append(rh.allHits, hit)
		}
	}

	ruleIndices := make([]int, 0, len(byRule))
	for ri := range byRule {
		ruleIndices = append(ruleIndices, ri)
	}
	sort.Ints(ruleIndices)

	var detections []Detection
	for _, ri := range ruleIndices {
		rule := idx.rules[ri]
		rh := byRule[ri]

		if rule.Compiled() != nil {
			matches := rule.Compiled().FindAllStringSubmatchIndex(text, -1)
			for _, m := range matches {
				extracted := namedCaptures(rule.Compiled(), text, m)
				detections = append(detections, Detection{
					RuleID:      rule.ID,
					AgentType:   rule.AgentType,
					EventType:   rule.EventType,
					Severity:    rule.Severity,
					Confidence:  0.95,
					Extracted:   extracted,
					MatchedText: text[m[0]:m[1]],
					SpanStart:   m[0],
					SpanEnd:     m[1],
				})
			}
			continue
		}

		// Anchor-only rule: one Detection per unique triggering anchor, at
		// that anchor's first hit in scan order.
		emitted := make(map[string]bool, len(rh.allHits))
		for _, hit := range rh.allHits {
			if emitted[hit.anchor] {
				continue
			}
			emitted[hit.anchor] = true
			detections = append(detections, Detection{
				RuleID:      rule.ID,
				AgentType:   rule.AgentType,
				EventType:   rule.EventType,
				Severity:    rule.Severity,
				Confidence:  0.6,
				MatchedText: hit.anchor,
				SpanStart:   hit.start,
				SpanEnd:     hit.start + len(hit.anchor),
			})
		}
	}

	return detections
}

type anchorHit struct {
	anchor string
	start  int
}

// scanAnchors runs the Level-2 Aho-Corasick overlap scan.
func (e *Engine) scanAnchors(idx *index, text string) []anchorHit {
	if idx.anchorMatcher == nil {
		return nil
	}
	matches := idx.anchorMatcher.MatchString(text)
	hits := make([]anchorHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, anchorHit{anchor: m.MatchString(), start: int(m.Pos())})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].anchor < hits[j].anchor
	})
	return hits
}

func namedCaptures(re interface {
	SubexpNames() []string
}, text string, m []int) map[string]string {
	names := re.SubexpNames()
	out := make(map[string]string)
	for i, name := range names {
		if name == "" || i*2+1 >= len(m) {
			continue
		}
		start, end := m[i*2], m[i*2+1]
		if start < 0 || end < 0 {
			continue
		}
		out[name] = text[start:end]
	}
	return out
}

// DetectWithContext runs Detect over ctx.TailBuffer()+text, then applies
// the overlap filter, agent gate, and TTL dedup. It updates ctx's tail
// buffer and seen-keys as a side effect.
func (e *Engine) DetectWithContext(text string, ctx *detectctx.Context) []Detection {
	return e.detectWithContextAt(text, ctx, time.Now())
}

func (e *Engine) detectWithContextAt(text string, ctx *detectctx.Context, now time.Time) []Detection {
	combined := ctx.TailBuffer() + text
	overlapLen := len(ctx.TailBuffer())
	ctx.SetTailBuffer(combined)

	all := e.Detect(combined)

	var kept []Detection
	for _, d := range all {
		if d.SpanEnd <= overlapLen {
			continue // entirely within the already-seen overlap
		}
		if !passesAgentGate(d, ctx.AgentType) {
			continue
		}
		if !ctx.MarkSeen(d.DedupKey(), now) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func passesAgentGate(d Detection, ctxAgent patterns.AgentType) bool {
	if ctxAgent == "" || ctxAgent == patterns.AgentUnknown {
		return true // conservative passthrough
	}
	if d.AgentType == patterns.AgentWezterm {
		return true // infrastructure rules always pass
	}
	return d.AgentType == ctxAgent
}
