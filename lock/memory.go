package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nameearly/agentkernel/kernel"
)

type record struct {
	kind    Kind
	holders map[string]time.Time // ownerID -> expiresAt
}

// InMemoryManager is the default, in-process lock backend. Expired records
// are reaped lazily: on any Acquire/Renew/GetOwner call touching the name,
// not on a background timer. IsLocked treats expired holders as absent
// without removing them.
type InMemoryManager struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewInMemoryManager creates an empty in-process lock manager.
func NewInMemoryManager() *InMemoryManager {
	return &InMemoryManager{records: make(map[string]*record)}
}

// reapLocked drops expired holders from name's record, deleting the record
// entirely once it has no holders left. Must be called with m.mu held.
func (m *InMemoryManager) reapLocked(name string, now time.Time) {
	rec, ok := m.records[name]
	if !ok {
		return
	}
	for owner, expiresAt := range rec.holders {
		if now.After(expiresAt) {
			delete(rec.holders, owner)
		}
	}
	if len(rec.holders) == 0 {
		delete(m.records, name)
	}
}

// canAcquireLocked implements spec's per-kind admission rule. Must be
// called with m.mu held and after reapLocked.
func (m *InMemoryManager) canAcquireLocked(name string, kind Kind) bool {
	rec, exists := m.records[name]
	switch kind {
	case Mutex, Write:
		return !exists
	case Read:
		if !exists {
			return true
		}
		return rec.kind != Write
	default:
		return false
	}
}

func (m *InMemoryManager) grantLocked(name string, kind Kind, ownerID string, lease time.Duration, now time.Time) {
	rec, exists := m.records[name]
	if kind == Read && exists && rec.kind == Read {
		rec.holders[ownerID] = now.Add(lease)
		return
	}
	m.records[name] = &record{
		kind:    kind,
		holders: map[string]time.Time{ownerID: now.Add(lease)},
	}
}

// Acquire implements Manager.Acquire.
func (m *InMemoryManager) Acquire(ctx context.Context, name string, kind Kind, acquireTimeout, leaseDuration time.Duration) (string, error) {
	ownerID := uuid.NewString()
	hasDeadline := acquireTimeout >= 0
	deadline := time.Now().Add(acquireTimeout)

	for {
		select {
		case <-ctx.Done():
			return "", kernel.ErrCancelled
		default:
		}

		now := time.Now()
		m.mu.Lock()
		m.reapLocked(name, now)
		if m.canAcquireLocked(name, kind) {
			m.grantLocked(name, kind, ownerID, leaseDuration, now)
			m.mu.Unlock()
			return ownerID, nil
		}
		m.mu.Unlock()

		if acquireTimeout == 0 || (hasDeadline && !now.Before(deadline)) {
			return "", kernel.ErrTimeout
		}

		wait := 10 * time.Millisecond
		if hasDeadline {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return "", kernel.ErrCancelled
		case <-time.After(wait):
		}
	}
}

// Release implements Manager.Release.
func (m *InMemoryManager) Release(name, ownerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return false
	}
	if _, held := rec.holders[ownerID]; !held {
		return false
	}
	delete(rec.holders, ownerID)
	if len(rec.holders) == 0 {
		delete(m.records, name)
	}
	return true
}

// Renew implements Manager.Renew.
func (m *InMemoryManager) Renew(name, ownerID string, newLease time.Duration) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapLocked(name, now)
	rec, ok := m.records[name]
	if !ok {
		return false
	}
	if _, held := rec.holders[ownerID]; !held {
		return false
	}
	rec.holders[ownerID] = now.Add(newLease)
	return true
}

// IsLocked implements Manager.IsLocked.
func (m *InMemoryManager) IsLocked(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return false
	}
	now := time.Now()
	for _, expiresAt := range rec.holders {
		if !now.After(expiresAt) {
			return true
		}
	}
	return false
}

// GetOwner implements Manager.GetOwner.
func (m *InMemoryManager) GetOwner(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked(name, time.Now())
	rec, ok := m.records[name]
	if !ok {
		return "", false
	}
	for owner := range rec.holders {
		return owner, true
	}
	return "", false
}
