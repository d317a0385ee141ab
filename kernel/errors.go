// Package kernel wires the subsystem packages (metrics, ratelimit, breaker,
// cache, lock, broker, registry, balancer, queue, pool, scheduler, workflow)
// into a single runtime and carries the error sentinels shared across all
// of them. Grounded on the teacher's control_plane error-sentinel style
// (plain package-level errors.New, wrapped with fmt.Errorf("%w") at call
// sites rather than a custom error-code type).
package kernel

import "errors"

var (
	// ErrTimeout is returned when a blocking operation's deadline or
	// acquire-timeout elapses before it could complete.
	ErrTimeout = errors.New("kernel: timed out")

	// ErrCancelled is returned when a blocking operation's context is
	// cancelled before it could complete.
	ErrCancelled = errors.New("kernel: cancelled")

	// ErrNotFound is returned when a lookup by key, id, or name fails.
	ErrNotFound = errors.New("kernel: not found")

	// ErrFull is returned when a bounded structure rejects work because it
	// is at capacity (the pool's AddAgent at max-size).
	ErrFull = errors.New("kernel: full")
)
