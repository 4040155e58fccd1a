package paneio

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// maxPTYScrollback bounds how much captured output a PTYAdapter retains
// per pane.
const maxPTYScrollback = 256 * 1024

// PTYAdapter is a reference PaneIO implementation hosting local commands
// under pseudo-terminals. Each Spawn becomes one pane; captured output is
// kept in a bounded scrollback buffer.
type PTYAdapter struct {
	mu    sync.Mutex
	panes map[string]*ptyPane
}

type ptyPane struct {
	info PaneInfo
	cmd  *exec.Cmd
	tty  io.ReadWriteCloser

	mu         sync.Mutex
	scrollback strings.Builder
}

// NewPTYAdapter creates an adapter with no panes.
func NewPTYAdapter() *PTYAdapter {
	return &PTYAdapter{panes: make(map[string]*ptyPane)}
}

// Spawn starts cmd under a fresh pty and registers it as a pane. A reader
// goroutine drains the pty into the pane's scrollback until the process
// exits.
func (a *PTYAdapter) Spawn(info PaneInfo, cmd *exec.Cmd) error {
	tty, err := pty.Start(cmd)
	if err != nil {
		return err
	}

	p := &ptyPane{info: info, cmd: cmd, tty: tty}
	a.mu.Lock()
	a.panes[info.PaneID] = p
	a.mu.Unlock()

	go p.drain()
	return nil
}

func (p *ptyPane) drain() {
	buf := make([]byte, 4096)
	for {
		n, err := p.tty.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.scrollback.Write(buf[:n])
			if p.scrollback.Len() > maxPTYScrollback {
				trimmed := p.scrollback.String()
				trimmed = trimmed[len(trimmed)-maxPTYScrollback:]
				p.scrollback.Reset()
				p.scrollback.WriteString(trimmed)
			}
			p.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Close releases every pane's pty and waits for its process.
func (a *PTYAdapter) Close() error {
	a.mu.Lock()
	panes := make([]*ptyPane, 0, len(a.panes))
	for _, p := range a.panes {
		panes = append(panes, p)
	}
	a.panes = make(map[string]*ptyPane)
	a.mu.Unlock()

	var firstErr error
	for _, p := range panes {
		if err := p.tty.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Wait()
		}
	}
	return firstErr
}

func (a *PTYAdapter) pane(paneID string) (*ptyPane, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.panes[paneID]
	return p, ok
}

// ListPanes implements PaneIO.
func (a *PTYAdapter) ListPanes(ctx context.Context) ([]PaneInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PaneInfo, 0, len(a.panes))
	for _, p := range a.panes {
		out = append(out, p.info)
	}
	return out, nil
}

// GetPane implements PaneIO.
func (a *PTYAdapter) GetPane(ctx context.Context, paneID string) (PaneInfo, error) {
	p, ok := a.pane(paneID)
	if !ok {
		return PaneInfo{}, ErrPaneNotFound
	}
	return p.info, nil
}

// GetText implements PaneIO. Escape stripping is left to the caller when
// includeEscapes is true; otherwise CSI/OSC sequences are removed.
func (a *PTYAdapter) GetText(ctx context.Context, paneID string, includeEscapes bool) (string, error) {
	p, ok := a.pane(paneID)
	if !ok {
		return "", ErrPaneNotFound
	}
	p.mu.Lock()
	text := p.scrollback.String()
	p.mu.Unlock()
	if !includeEscapes {
		text = stripEscapes(text)
	}
	return text, nil
}

// SendText implements PaneIO.
func (a *PTYAdapter) SendText(ctx context.Context, paneID string, text string) error {
	p, ok := a.pane(paneID)
	if !ok {
		return ErrPaneNotFound
	}
	_, err := io.WriteString(p.tty, text)
	return err
}

// WaitFor implements PaneIO.
func (a *PTYAdapter) WaitFor(ctx context.Context, paneID string, matcher Matcher, opts WaitOptions, timeout time.Duration) (WaitResult, error) {
	return pollWait(ctx, func(ctx context.Context) (string, error) {
		return a.GetText(ctx, paneID, opts.IncludeEscapes)
	}, matcher, opts, timeout)
}

var _ PaneIO = (*PTYAdapter)(nil)

// stripEscapes removes CSI and OSC escape sequences from captured pty
// output so anchor matching sees the text a human sees.
func stripEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != 0x1b {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			break
		}
		switch s[i+1] {
		case '[': // CSI ... final byte in 0x40-0x7e
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
		case ']': // OSC ... terminated by BEL or ST
			j := i + 2
			for j < len(s) && s[j] != 0x07 && !(s[j] == 0x1b && j+1 < len(s) && s[j+1] == '\\') {
				j++
			}
			if j < len(s) && s[j] == 0x1b {
				j++
			}
			i = j
		default:
			i++
		}
	}
	return b.String()
}
