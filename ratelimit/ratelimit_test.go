package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowAllowsWithinMax(t *testing.T) {
	sw := NewSlidingWindow(100*time.Millisecond, 3)
	for i := 0; i < 3; i++ {
		res := sw.Check("k", 1)
		require.True(t, res.Allowed)
	}
	res := sw.Check("k", 1)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestSlidingWindowExpiresOldMarks(t *testing.T) {
	sw := NewSlidingWindow(50*time.Millisecond, 1)
	require.True(t, sw.Check("k", 1).Allowed)
	require.False(t, sw.Check("k", 1).Allowed)
	time.Sleep(70 * time.Millisecond)
	require.True(t, sw.Check("k", 1).Allowed)
}

func TestTokenBucketAllowsBurstThenThrottles(t *testing.T) {
	tb := NewTokenBucket(2, time.Second, 2)
	require.True(t, tb.Check("k", 1).Allowed)
	require.True(t, tb.Check("k", 1).Allowed)
	res := tb.Check("k", 1)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	tb := NewTokenBucket(10, 100*time.Millisecond, 1)
	require.True(t, tb.Check("k", 1).Allowed)
	require.False(t, tb.Check("k", 1).Allowed)
	time.Sleep(20 * time.Millisecond)
	require.True(t, tb.Check("k", 1).Allowed)
}

func TestMultiDimensionalRequiresAllDims(t *testing.T) {
	sw1 := NewSlidingWindow(time.Second, 10)
	sw2 := NewSlidingWindow(time.Second, 1)

	checks := []DimCheck{
		{Dim: "ip", Limiter: sw1, Key: "1.2.3.4", Amount: 1},
		{Dim: "user", Limiter: sw2, Key: "alice", Amount: 1},
	}

	res := MultiDimensionalCheck(checks)
	require.True(t, res.Allowed)

	res2 := MultiDimensionalCheck(checks)
	require.False(t, res2.Allowed) // user dim exhausted
}
