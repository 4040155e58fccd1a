// Package panecaps models the observable pane properties that gate action
// safety: prompt-active, alt-screen, capture-gap, and reservation state.
package panecaps

import (
	"time"
)

// Capabilities is a snapshot of pane state at authorization time. The
// *bool fields are tri-state: nil means "unknown", which the policy engine
// treats as unsafe whenever the corresponding gate is enabled.
type Capabilities struct {
	PromptActive   *bool
	AltScreen      *bool
	InGap          bool
	IsReserved     bool
	ReservedBy     string
	OSCMarkersSeen uint64
}

// Bool is a convenience for building tri-state fields in literals.
func Bool(v bool) *bool {
	return &v
}

// PromptKnownActive reports whether the pane is known to have an active
// shell prompt (unknown counts as not active).
func (c Capabilities) PromptKnownActive() bool {
	return c.PromptActive != nil && *c.PromptActive
}

// AltScreenKnownActive reports whether the pane is known to be running a
// full-screen application.
func (c Capabilities) AltScreenKnownActive() bool {
	return c.AltScreen != nil && *c.AltScreen
}

// Segment is the slice of capture history FromSegments needs; it matches
// the storage collaborator's segment shape without importing it.
type Segment struct {
	CapturedAt time.Time
	OSCMarker  bool
}

// DefaultGapThreshold is how stale the newest capture may be before the
// pane is considered to be in a capture gap.
const DefaultGapThreshold = 10 * time.Second

// FromSegments derives the capture-dependent fields (InGap,
// OSCMarkersSeen, PromptActive) from recent capture segments, newest
// first. Reservation state is the caller's to fill in; a pane with no
// segments at all is in a gap by definition.
func FromSegments(segments []Segment, now time.Time, gapThreshold time.Duration) Capabilities {
	if gapThreshold <= 0 {
		gapThreshold = DefaultGapThreshold
	}
	caps := Capabilities{InGap: true}
	if len(segments) == 0 {
		return caps
	}

	newest := segments[0]
	for _, seg := range segments[1:] {
		if seg.CapturedAt.After(newest.CapturedAt) {
			newest = seg
		}
	}
	caps.InGap = now.Sub(newest.CapturedAt) > gapThreshold

	var markers uint64
	for _, seg := range segments {
		if seg.OSCMarker {
			markers++
		}
	}
	caps.OSCMarkersSeen = markers

	// OSC prompt markers on the newest capture are the only positive
	// prompt signal available from capture history alone; absent that the
	// prompt state stays unknown.
	if newest.OSCMarker {
		caps.PromptActive = Bool(true)
	}
	return caps
}
