// Package ratelimit gates requests by key under a sliding-window or
// token-bucket policy, plus a multi-dimensional combinator. Grounded on the
// teacher's scheduler/limiter.go, which wraps golang.org/x/time/rate the
// same way TokenBucket does here.
package ratelimit

import "time"

// Result carries the outcome of a rate-limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter checks whether amount tokens may be consumed under key.
type Limiter interface {
	Check(key string, amount int) Result
}
