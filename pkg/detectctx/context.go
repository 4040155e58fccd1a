// Package detectctx holds the per-pane state the detection engine threads
// across calls: a cross-segment tail buffer and a TTL-bounded dedup set.
// A Context is not internally synchronized; its owner is the single
// logical actor ingesting one pane's output and must not call it
// concurrently from more than one goroutine.
package detectctx

import (
	"time"

	"github.com/wa-observability/wa/pkg/patterns"
)

// MaxTailBufferBytes bounds how much previously-seen text is retained across
// detect calls for cross-segment continuity.
const MaxTailBufferBytes = 2048

// DefaultTTL is how long a dedup key is remembered before it is treated as
// unseen again.
const DefaultTTL = 5 * time.Minute

// MaxSeenKeys bounds the dedup set; the oldest entry is FIFO-evicted once
// the bound is reached.
const MaxSeenKeys = 1000

// Context is per-pane state passed to the engine across detect calls.
type Context struct {
	PaneID    string
	AgentType patterns.AgentType
	TTL       time.Duration

	tailBuffer string
	seenKeys   map[string]time.Time
	seenOrder  []string
}

// New creates a fresh Context for a pane. An empty agentType is treated as
// Unknown: a conservative passthrough that keeps every rule's detections.
func New(paneID string, agentType patterns.AgentType) *Context {
	return &Context{
		PaneID:    paneID,
		AgentType: agentType,
		TTL:       DefaultTTL,
		seenKeys:  make(map[string]time.Time),
	}
}

// TailBuffer returns the last ≤2KiB of previously-seen text, on a char
// boundary.
func (c *Context) TailBuffer() string {
	return c.tailBuffer
}

// SetTailBuffer stores the tail of combined as the new tail buffer, trimmed
// to the last MaxTailBufferBytes bytes at a valid UTF-8 rune boundary.
func (c *Context) SetTailBuffer(combined string) {
	c.tailBuffer = trimToTailBoundary(combined, MaxTailBufferBytes)
}

// trimToTailBoundary returns the suffix of s no longer than maxBytes,
// advancing forward from the naive cut point until it lands on a valid
// UTF-8 rune boundary (a continuation byte, 10xxxxxx, never starts a rune).
func trimToTailBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && isUTF8Continuation(s[start]) {
		start++
	}
	return s[start:]
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// MarkSeen records dedupKey as seen at now and reports whether it was newly
// recorded (true) or already present and unexpired (false). An expired key
// is treated as new. Capacity is bounded to MaxSeenKeys by FIFO-evicting the
// oldest order-list entry — not the key about to be inserted — when a
// genuinely new key would exceed the bound.
func (c *Context) MarkSeen(dedupKey string, now time.Time) bool {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if ts, ok := c.seenKeys[dedupKey]; ok && now.Sub(ts) < ttl {
		return false
	}

	if _, existed := c.seenKeys[dedupKey]; !existed {
		if len(c.seenOrder) >= MaxSeenKeys {
			oldest := c.seenOrder[0]
			c.seenOrder = c.seenOrder[1:]
			delete(c.seenKeys, oldest)
		}
		c.seenOrder = append(c.seenOrder, dedupKey)
	}
	c.seenKeys[dedupKey] = now
	return true
}

// IsSeen is a non-mutating check with the same expiry semantics as
// MarkSeen.
func (c *Context) IsSeen(dedupKey string, now time.Time) bool {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ts, ok := c.seenKeys[dedupKey]
	return ok && now.Sub(ts) < ttl
}

// ClearSeen empties both the dedup state and the tail buffer.
func (c *Context) ClearSeen() {
	c.seenKeys = make(map[string]time.Time)
	c.seenOrder = nil
	c.tailBuffer = ""
}
