package reservation

import (
	"errors"
	"sync"
)

// ErrBusy indicates another workflow currently holds the pane's lock.
var ErrBusy = errors.New("reservation: pane busy")

// LockManager hands out in-process per-pane workflow locks. Unlike
// persistent reservations, these never outlive the process and are meant
// for the duration of one workflow execution.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

// TryLock acquires the pane's workflow lock without blocking, returning
// ErrBusy when another workflow holds it.
func (lm *LockManager) TryLock(paneID string) (*Lock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[paneID] {
		return nil, ErrBusy
	}
	lm.held[paneID] = true
	return &Lock{manager: lm, paneID: paneID}, nil
}

// Held reports whether a workflow lock is currently held for the pane.
func (lm *LockManager) Held(paneID string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.held[paneID]
}

// Lock is one acquired pane lock. Release is safe to call more than once;
// callers defer it so the lock is released on every exit path, panics
// included.
type Lock struct {
	manager *LockManager
	paneID  string
	once    sync.Once
}

// PaneID returns the pane this lock covers.
func (l *Lock) PaneID() string {
	return l.paneID
}

// Release returns the lock to the manager.
func (l *Lock) Release() {
	l.once.Do(func() {
		l.manager.mu.Lock()
		delete(l.manager.held, l.paneID)
		l.manager.mu.Unlock()
	})
}
