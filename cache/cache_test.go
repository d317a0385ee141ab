package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := NewSingleTier(LRU, 10, 0)
	c.Put("k", []byte("v"), 0)
	v, hit := c.Get("k")
	require.True(t, hit)
	require.Equal(t, []byte("v"), v)

	c.Delete("k")
	require.False(t, c.Contains("k"))
	_, hit = c.Get("k")
	require.False(t, hit)
}

func TestGetReturnsDeepCopy(t *testing.T) {
	c := NewSingleTier(LRU, 10, 0)
	c.Put("k", []byte("v"), 0)
	v, _ := c.Get("k")
	v[0] = 'z'

	v2, _ := c.Get("k")
	require.Equal(t, []byte("v"), v2)
}

// Scenario 2 from spec.md §8: single-tier LRU, max-size=3, put a,b,c, read
// a, put d -> a,c,d remain, b evicted.
func TestLRUEviction(t *testing.T) {
	c := NewSingleTier(LRU, 3, 0)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0)
	c.Put("c", []byte("3"), 0)

	_, hit := c.Get("a")
	require.True(t, hit)

	c.Put("d", []byte("4"), 0)

	require.True(t, c.Contains("a"))
	require.False(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
	require.True(t, c.Contains("d"))
}

// Scenario 3 from spec.md §8: TTL expiry.
func TestTTLExpiry(t *testing.T) {
	c := NewSingleTier(LRU, 10, 0)
	c.Put("x", []byte("v"), 100*time.Millisecond)

	require.True(t, c.Contains("x"))
	time.Sleep(150 * time.Millisecond)

	require.False(t, c.Contains("x"))
	_, hit := c.Get("x")
	require.False(t, hit)
}

func TestFIFOEvictsOldestRegardlessOfAccess(t *testing.T) {
	c := NewSingleTier(FIFO, 2, 0)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0)
	c.Get("a")
	c.Get("a")

	c.Put("c", []byte("3"), 0)

	require.False(t, c.Contains("a"))
	require.True(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
}

func TestLFUEvictsLeastFrequentThenLRU(t *testing.T) {
	c := NewSingleTier(LFU, 2, 0)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	c.Put("c", []byte("3"), 0)

	require.True(t, c.Contains("a"))
	require.False(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
}

func TestMultiTierPromotionOnLowerHit(t *testing.T) {
	c := NewMultiTier(
		TierConfig{Policy: LRU, MaxSize: 1, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 1, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 2, DefaultTTL: 0},
	)

	c.Put("a", []byte("1"), 0) // lands in L1
	c.Put("b", []byte("2"), 0) // L1 full, a demotes to L2, b takes L1

	stats := c.Stats()
	require.True(t, stats[0].Size <= 1)

	v, hit := c.Get("a") // hit at L2, promotes to L1
	require.True(t, hit)
	require.Equal(t, []byte("1"), v)
	require.True(t, c.Contains("a"))
}

func TestMultiTierWriteAlwaysLandsInL1(t *testing.T) {
	c := NewMultiTier(
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
	)
	c.Put("k", []byte("v"), 0)
	stats := c.Stats()
	require.Equal(t, 1, stats[0].Size)
	require.Equal(t, 0, stats[1].Size)
	require.Equal(t, 0, stats[2].Size)
}

func TestDeleteCascadesAcrossTiers(t *testing.T) {
	c := NewMultiTier(
		TierConfig{Policy: LRU, MaxSize: 1, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 1, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 1, DefaultTTL: 0},
	)
	c.Put("a", []byte("1"), 0)
	c.Put("b", []byte("2"), 0) // a demoted to L2

	require.True(t, c.Delete("a"))
	require.False(t, c.Contains("a"))
}

func TestWarmerFillsOnMiss(t *testing.T) {
	c := NewSingleTier(LRU, 10, 0)
	c.SetWarmer(func(key string) ([]byte, time.Duration, bool) {
		if key == "warm" {
			return []byte("warmed"), 0, true
		}
		return nil, 0, false
	})

	v, hit := c.Get("warm")
	require.True(t, hit)
	require.Equal(t, []byte("warmed"), v)
	require.True(t, c.Contains("warm"))

	_, hit = c.Get("cold")
	require.False(t, hit)
}

func TestClearEmptiesAllTiers(t *testing.T) {
	c := NewMultiTier(
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
		TierConfig{Policy: LRU, MaxSize: 5, DefaultTTL: 0},
	)
	c.Put("a", []byte("1"), 0)
	c.Clear()
	require.False(t, c.Contains("a"))
	for _, s := range c.Stats() {
		require.Equal(t, 0, s.Size)
	}
}
