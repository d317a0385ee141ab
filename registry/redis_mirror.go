package registry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror caches a read-through copy of Discover results in Redis, the
// same SET-with-TTL pattern the teacher's store.RedisStore uses for its
// plain key/value operations. It is an optional cross-process read cache
// layered on top of a local *Registry; it never replaces it as the source
// of truth for writes.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror wraps client with a key prefix and mirror TTL.
func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) key(serviceName string) string {
	return m.prefix + "discover:" + serviceName
}

// Refresh writes instances as the current mirrored Discover result for
// serviceName. Failures are logged, not returned: the mirror is a cache,
// never a write path a caller depends on.
func (m *RedisMirror) Refresh(ctx context.Context, serviceName string, instances []Instance) {
	data, err := json.Marshal(instances)
	if err != nil {
		log.Printf("registry: mirror marshal failed: %v", err)
		return
	}
	if err := m.client.Set(ctx, m.key(serviceName), data, m.ttl).Err(); err != nil {
		log.Printf("registry: mirror refresh failed: %v", err)
	}
}

// Discover reads the mirrored result for serviceName, returning ok=false
// on a miss (expired, never written, or a Redis error) so the caller can
// fall back to the authoritative Registry.
func (m *RedisMirror) Discover(ctx context.Context, serviceName string) ([]Instance, bool) {
	data, err := m.client.Get(ctx, m.key(serviceName)).Bytes()
	if err != nil {
		return nil, false
	}
	var instances []Instance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, false
	}
	return instances, true
}
