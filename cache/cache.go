// Package cache implements the kernel's multi-tier key/value cache: three
// independently-configured tiers (L1/L2/L3) with promotion on read and
// demotion on eviction, or a single tier used standalone. Grounded on the
// teacher's control_plane/store/memory.go RWMutex-guarded map pattern,
// narrowed to a single mutex per spec.md §4.4's reentrant-critical-section
// requirement (promotion/eviction must not be observable mid-move).
package cache

import (
	"sync"
	"time"
)

// TierConfig configures one level of a multi-tier cache.
type TierConfig struct {
	Policy     EvictionPolicy
	MaxSize    int
	DefaultTTL time.Duration
}

// Warmer is consulted on a full cache miss, before Get reports (nil, false).
// It runs outside the cache's lock so it cannot deadlock against other
// cache calls it might trigger.
type Warmer func(key string) (value []byte, ttl time.Duration, ok bool)

// Cache is a single- or multi-tier key/value store with per-tier eviction
// policies and TTL expiry. The zero value is not usable; construct with
// NewSingleTier or NewMultiTier.
type Cache struct {
	mu     sync.Mutex
	tiers  []*tier
	warmer Warmer
}

// NewSingleTier builds a Cache with exactly one tier, acting as both L1 and
// its own bottom tier. Promotion is a no-op since there is nowhere to
// promote from.
func NewSingleTier(policy EvictionPolicy, maxSize int, defaultTTL time.Duration) *Cache {
	return &Cache{tiers: []*tier{newTier(policy, maxSize, defaultTTL)}}
}

// NewMultiTier builds the three-tier L1/L2/L3 cache described in spec.md
// §4.4: reads search L1 -> L2 -> L3 with promotion to L1 on a lower-tier
// hit, and an L1 eviction demotes its victim to L2 (and an L2 eviction in
// turn demotes to L3; an L3 eviction simply destroys the entry).
func NewMultiTier(l1, l2, l3 TierConfig) *Cache {
	return &Cache{tiers: []*tier{
		newTier(l1.Policy, l1.MaxSize, l1.DefaultTTL),
		newTier(l2.Policy, l2.MaxSize, l2.DefaultTTL),
		newTier(l3.Policy, l3.MaxSize, l3.DefaultTTL),
	}}
}

// SetWarmer installs a callback consulted on full cache misses.
func (c *Cache) SetWarmer(w Warmer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warmer = w
}

func deepCopy(v []byte) []byte {
	if v == nil {
		return nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

// findLocked returns the tier index holding key and the entry, evicting it
// first if it has expired. Must be called with c.mu held.
func (c *Cache) findLocked(key string, now time.Time) (int, *entry, bool) {
	for i, t := range c.tiers {
		e, ok := t.entries[key]
		if !ok {
			continue
		}
		if e.expired(now) {
			t.remove(key)
			return 0, nil, false
		}
		return i, e, true
	}
	return 0, nil, false
}

// insertCascadeLocked inserts e at tiers[idx], demoting any victim the
// insert evicts into tiers[idx+1] (recursively). An eviction out of the
// last tier destroys the victim. Must be called with c.mu held.
func (c *Cache) insertCascadeLocked(idx int, e *entry) {
	if idx >= len(c.tiers) {
		return
	}
	t := c.tiers[idx]
	if victim, evicted := t.evictOne(e.key); evicted {
		c.insertCascadeLocked(idx+1, victim)
	}
	t.insert(e)
}

// removeFromAllLocked deletes key from every tier, returning whether it was
// present anywhere. Must be called with c.mu held.
func (c *Cache) removeFromAllLocked(key string) bool {
	found := false
	for _, t := range c.tiers {
		if t.remove(key) {
			found = true
		}
	}
	return found
}

// Get returns a deep copy of the cached value and true on a hit. A hit at a
// tier below L1 promotes the entry to L1 within the same critical section.
// On a full miss, the warmer (if set) is consulted outside the lock and,
// on success, the value is stored before being returned.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := time.Now()

	c.mu.Lock()
	idx, e, ok := c.findLocked(key, now)
	if ok {
		c.tiers[idx].hits++
		e.lastAccessed = now
		e.accessCount++
		value := deepCopy(e.value)
		if idx != 0 {
			c.tiers[idx].remove(key)
			c.insertCascadeLocked(0, e)
		}
		c.mu.Unlock()
		return value, true
	}
	c.tiers[0].misses++
	warmer := c.warmer
	c.mu.Unlock()

	if warmer == nil {
		return nil, false
	}
	value, ttl, ok := warmer(key)
	if !ok {
		return nil, false
	}
	c.Put(key, value, ttl)
	return deepCopy(value), true
}

// Put upserts key, always landing the entry in L1. If key already lives in
// a lower tier it is removed from there first, preserving the invariant
// that a key lives in at most one tier at a time. ttl <= 0 uses the tier's
// default TTL; if that is also <= 0 the entry never expires.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeFromAllLocked(key)

	if ttl <= 0 {
		ttl = c.tiers[0].defaultTTL
	}
	e := &entry{
		key:          key,
		value:        deepCopy(value),
		createdAt:    now,
		lastAccessed: now,
		accessCount:  0,
		ttl:          ttl,
	}
	c.insertCascadeLocked(0, e)
}

// Delete removes key from every tier and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeFromAllLocked(key)
}

// Contains reports whether key is present and unexpired, evicting it first
// if its TTL has lapsed.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _, ok := c.findLocked(key, time.Now())
	return ok
}

// Clear empties every tier. Per-tier hit/miss/eviction counters survive a
// Clear; they describe cache behavior over time, not current occupancy.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tiers {
		t.entries = make(map[string]*entry)
	}
}

// Stats returns one Stats entry per tier, L1 first.
func (c *Cache) Stats() []Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stats, len(c.tiers))
	for i, t := range c.tiers {
		out[i] = t.stats()
	}
	return out
}
