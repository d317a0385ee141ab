// Package lock implements the kernel's distributed lock manager: mutex,
// read-shared, and write-exclusive leases with acquire-timeout polling and
// lazy (access-triggered) expiry. Grounded on the teacher's
// control_plane/coordination leader-election lease pattern (owner-id
// tokens, expires-at bookkeeping, Renew-only-if-owner) generalized from a
// single leadership lease to named locks of three kinds.
package lock

import (
	"context"
	"time"
)

// Kind is one of Mutex, Read, Write.
type Kind int

const (
	Mutex Kind = iota
	Read
	Write
)

func (k Kind) String() string {
	switch k {
	case Mutex:
		return "mutex"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Manager is the lock backend interface. The default in-process
// implementation is InMemoryManager; RedisBackend backs it with Redis for
// cross-process coordination.
type Manager interface {
	// Acquire blocks (polling every 10ms) up to acquireTimeout for a lease
	// on name, returning an owner-id on success. acquireTimeout == 0 makes
	// the attempt non-blocking (a single try, no polling); acquireTimeout
	// < 0 waits forever. ctx cancellation always takes precedence,
	// returning kernel.ErrCancelled; a timed-out poll returns
	// kernel.ErrTimeout.
	Acquire(ctx context.Context, name string, kind Kind, acquireTimeout, leaseDuration time.Duration) (string, error)

	// Release succeeds only when ownerID holds the current record for
	// name; otherwise it is a no-op returning false.
	Release(name, ownerID string) bool

	// Renew extends the lease for name if ownerID currently holds it.
	Renew(name, ownerID string, newLease time.Duration) bool

	// IsLocked reports whether name currently has any unexpired holder.
	// It does not evict an expired record; it just reports it as unlocked.
	IsLocked(name string) bool

	// GetOwner returns an owner-id currently holding name, and whether
	// any unexpired holder exists. For a shared read lock with multiple
	// holders, one is returned arbitrarily.
	GetOwner(name string) (string, bool)
}
