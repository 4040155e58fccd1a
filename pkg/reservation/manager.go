// Package reservation provides the two exclusivity layers for panes:
// persistent cross-process reservations (TTL-bounded leases in storage)
// and in-process workflow locks (one workflow per pane at a time).
package reservation

import (
	cryptorand "crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wa-observability/wa/pkg/storage"
)

var reservationEntropy = ulid.Monotonic(cryptorand.Reader, 0)

// Manager issues persistent pane reservations backed by storage. The
// one-active-reservation-per-pane invariant is enforced inside the storage
// transaction, so two racing Create calls cannot both succeed.
type Manager struct {
	Storage *storage.Store

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Create reserves a pane for (ownerKind, ownerID) for ttl. Fails with
// storage.ErrReservationConflict if the pane already has an active
// reservation.
func (m *Manager) Create(paneID, ownerKind, ownerID, reason string, ttl time.Duration) (*storage.Reservation, error) {
	if paneID == "" {
		return nil, fmt.Errorf("reservation: pane id must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("reservation: ttl must be positive")
	}

	now := m.now()
	r := &storage.Reservation{
		ID:        strings.ToLower(ulid.MustNew(ulid.Timestamp(now), reservationEntropy).String()),
		PaneID:    paneID,
		OwnerKind: ownerKind,
		OwnerID:   ownerID,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.Storage.CreateReservation(r, now); err != nil {
		return nil, err
	}
	return r, nil
}

// Release releases a reservation by id. Idempotent: returns true only on
// the call that performed the transition.
func (m *Manager) Release(id string) (bool, error) {
	return m.Storage.ReleaseReservation(id, m.now())
}

// ListActive returns every reservation active at the current instant.
func (m *Manager) ListActive() ([]storage.Reservation, error) {
	return m.Storage.ListActiveReservations(m.now())
}

// GetActive returns the pane's active reservation, or nil if none.
func (m *Manager) GetActive(paneID string) (*storage.Reservation, error) {
	return m.Storage.GetActiveReservation(paneID, m.now())
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}
