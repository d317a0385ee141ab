package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket backs each key with its own golang.org/x/time/rate.Limiter,
// the same pattern as the teacher's scheduler.TokenBucketLimiter. x/time's
// Limiter already implements the refill formula spec.md §4.8 describes
// (tokens += elapsed * (max/window), capped at burst), so Check is a thin
// Reserve/Cancel wrapper that adds the remaining/retry-after telemetry the
// kernel's contract needs but x/time/rate doesn't surface directly.
type TokenBucket struct {
	limit rate.Limit // tokens per second == max/window
	burst int
	max   float64
	window time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucket creates a limiter refilling at max tokens per window, with
// burst capacity (defaults to max if burst <= 0).
func NewTokenBucket(max float64, window time.Duration, burst int) *TokenBucket {
	if burst <= 0 {
		burst = int(max)
		if burst <= 0 {
			burst = 1
		}
	}
	perSecond := max / window.Seconds()
	return &TokenBucket{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		max:      max,
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *TokenBucket) get(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = l
	}
	return l
}

// Check attempts to consume amount tokens for key.
func (t *TokenBucket) Check(key string, amount int) Result {
	now := time.Now()
	lim := t.get(key)

	r := lim.ReserveN(now, amount)
	if !r.OK() {
		// amount exceeds burst capacity; can never be satisfied immediately.
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    now,
			RetryAfter: t.window,
		}
	}

	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return Result{
			Allowed:    false,
			Remaining:  int(lim.TokensAt(now)),
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}
	}

	return Result{
		Allowed:   true,
		Remaining: int(lim.TokensAt(now)),
		ResetAt:   now,
	}
}
