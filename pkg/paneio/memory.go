package paneio

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryAdapter is an in-memory PaneIO used by tests and the demo wiring:
// panes are plain text buffers, SendText appends to a per-pane input log,
// and AppendOutput simulates agent output arriving on a pane.
type MemoryAdapter struct {
	mu    sync.Mutex
	panes map[string]*memoryPane
}

type memoryPane struct {
	info   PaneInfo
	output strings.Builder
	inputs []string
}

// NewMemoryAdapter creates an adapter with no panes.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{panes: make(map[string]*memoryPane)}
}

// AddPane registers a pane.
func (a *MemoryAdapter) AddPane(info PaneInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panes[info.PaneID] = &memoryPane{info: info}
}

// AppendOutput simulates output arriving on a pane.
func (a *MemoryAdapter) AppendOutput(paneID, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.panes[paneID]; ok {
		p.output.WriteString(text)
	}
}

// SentInputs returns everything sent to a pane, in order.
func (a *MemoryAdapter) SentInputs(paneID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.panes[paneID]
	if !ok {
		return nil
	}
	return append([]string(nil), p.inputs...)
}

// ListPanes implements PaneIO.
func (a *MemoryAdapter) ListPanes(ctx context.Context) ([]PaneInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PaneInfo, 0, len(a.panes))
	for _, p := range a.panes {
		out = append(out, p.info)
	}
	return out, nil
}

// GetPane implements PaneIO.
func (a *MemoryAdapter) GetPane(ctx context.Context, paneID string) (PaneInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.panes[paneID]
	if !ok {
		return PaneInfo{}, ErrPaneNotFound
	}
	return p.info, nil
}

// GetText implements PaneIO.
func (a *MemoryAdapter) GetText(ctx context.Context, paneID string, includeEscapes bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.panes[paneID]
	if !ok {
		return "", ErrPaneNotFound
	}
	return p.output.String(), nil
}

// SendText implements PaneIO.
func (a *MemoryAdapter) SendText(ctx context.Context, paneID string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.panes[paneID]
	if !ok {
		return ErrPaneNotFound
	}
	p.inputs = append(p.inputs, text)
	return nil
}

// WaitFor implements PaneIO.
func (a *MemoryAdapter) WaitFor(ctx context.Context, paneID string, matcher Matcher, opts WaitOptions, timeout time.Duration) (WaitResult, error) {
	return pollWait(ctx, func(ctx context.Context) (string, error) {
		return a.GetText(ctx, paneID, opts.IncludeEscapes)
	}, matcher, opts, timeout)
}

var _ PaneIO = (*MemoryAdapter)(nil)
