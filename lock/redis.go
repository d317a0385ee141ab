package lock

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nameearly/agentkernel/kernel"
)

// RedisBackend implements Manager over Redis, the same SET-NX-EX and
// Lua-compare-and-swap pattern as the teacher's store.RedisStore
// AcquireLock/RenewLock, generalized to the three lock kinds. Exclusive
// kinds (Mutex, Write) share one key per name so either blocks the other;
// shared Read holders live in a hash so multiple readers can coexist, each
// with its own expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. prefix namespaces every key
// this backend writes (e.g. "agentkernel:lock:").
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) exclKey(name string) string { return b.prefix + "excl:" + name }
func (b *RedisBackend) readKey(name string) string { return b.prefix + "read:" + name }

const renewExclScript = `
local val = redis.call("get", KEYS[1])
if not val then
	return -1
end
if val == ARGV[1] then
	return redis.call("pexpire", KEYS[1], tonumber(ARGV[2]))
else
	return -2
end
`

const releaseExclScript = `
local val = redis.call("get", KEYS[1])
if val == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Acquire implements Manager.Acquire.
func (b *RedisBackend) Acquire(ctx context.Context, name string, kind Kind, acquireTimeout, leaseDuration time.Duration) (string, error) {
	ownerID := uuid.NewString()
	hasDeadline := acquireTimeout >= 0
	deadline := time.Now().Add(acquireTimeout)

	for {
		select {
		case <-ctx.Done():
			return "", kernel.ErrCancelled
		default:
		}

		ok, err := b.tryAcquire(ctx, name, kind, ownerID, leaseDuration)
		if err != nil {
			return "", err
		}
		if ok {
			return ownerID, nil
		}

		now := time.Now()
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

func (b *RedisBackend) tryAcquire(ctx context.Context, name string, kind Kind, ownerID string, lease time.Duration) (bool, error) {
	switch kind {
	case Mutex, Write:
		ok, err := b.client.SetNX(ctx, b.exclKey(name), ownerID, lease).Result()
		if err != nil {
			return false, err
		}
		return ok, nil
	case Read:
		exists, err := b.client.Exists(ctx, b.exclKey(name)).Result()
		if err != nil {
			return false, err
		}
		if exists > 0 {
			return false, nil
		}
		if err := b.client.HSet(ctx, b.readKey(name), ownerID, time.Now().Add(lease).UnixNano()).Err(); err != nil {
			return false, err
		}
		b.client.Expire(ctx, b.readKey(name), lease)
		return true, nil
	default:
		return false, errors.New("lock: unknown kind")
	}
}

// Release implements Manager.Release.
func (b *RedisBackend) Release(name, ownerID string) bool {
	ctx := context.Background()

	res, err := b.client.Eval(ctx, releaseExclScript, []string{b.exclKey(name)}, ownerID).Result()
	if err == nil {
		if n, ok := res.(int64); ok && n == 1 {
			return true
		}
	}

	removed, err := b.client.HDel(ctx, b.readKey(name), ownerID).Result()
	if err != nil {
		return false
	}
	if removed > 0 {
		if n, _ := b.client.HLen(ctx, b.readKey(name)).Result(); n == 0 {
			b.client.Del(ctx, b.readKey(name))
		}
		return true
	}
	return false
}

// Renew implements Manager.Renew.
func (b *RedisBackend) Renew(name, ownerID string, newLease time.Duration) bool {
	ctx := context.Background()

	res, err := b.client.Eval(ctx, renewExclScript, []string{b.exclKey(name)}, ownerID, int64(newLease/time.Millisecond)).Result()
	if err == nil {
		if n, ok := res.(int64); ok && n == 1 {
			return true
		}
	}

	exists, err := b.client.HExists(ctx, b.readKey(name), ownerID).Result()
	if err != nil || !exists {
		return false
	}
	if err := b.client.HSet(ctx, b.readKey(name), ownerID, time.Now().Add(newLease).UnixNano()).Err(); err != nil {
		return false
	}
	b.client.Expire(ctx, b.readKey(name), newLease)
	return true
}

// IsLocked implements Manager.IsLocked.
func (b *RedisBackend) IsLocked(name string) bool {
	ctx := context.Background()
	if n, err := b.client.Exists(ctx, b.exclKey(name)).Result(); err == nil && n > 0 {
		return true
	}
	if n, err := b.client.HLen(ctx, b.readKey(name)).Result(); err == nil && n > 0 {
		return true
	}
	return false
}

// GetOwner implements Manager.GetOwner.
func (b *RedisBackend) GetOwner(name string) (string, bool) {
	ctx := context.Background()
	if val, err := b.client.Get(ctx, b.exclKey(name)).Result(); err == nil {
		return val, true
	}
	owners, err := b.client.HKeys(ctx, b.readKey(name)).Result()
	if err != nil || len(owners) == 0 {
		return "", false
	}
	return owners[0], true
}

// StartJanitor periodically scans for read-lock hashes left with only
// expired holders and deletes them, the same ScanLocks-driven sweep the
// teacher's store.Coordinator documents for its Janitor. Redis's own TTL
// already reaps the exclusive keys and whole read-hashes set on Acquire;
// this only catches a read-hash whose per-holder HSET fields expired
// individually without the hash's own TTL lapsing. It is a remote-backend
// concern only: InMemoryManager stays lazy-on-access.
func (b *RedisBackend) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.sweep(ctx)
			}
		}
	}()
}

func (b *RedisBackend) sweep(ctx context.Context) {
	keys, err := b.client.Keys(ctx, b.prefix+"read:*").Result()
	if err != nil {
		log.Printf("lock: janitor scan failed: %v", err)
		return
	}
	now := time.Now().UnixNano()
	for _, key := range keys {
		holders, err := b.client.HGetAll(ctx, key).Result()
		if err != nil {
			continue
		}
		for owner, expiresAtStr := range holders {
			expiresAt, err := strconv.ParseInt(expiresAtStr, 10, 64)
			if err != nil || expiresAt <= now {
				b.client.HDel(ctx, key, owner)
			}
		}
		if n, _ := b.client.HLen(ctx, key).Result(); n == 0 {
			b.client.Del(ctx, key)
		}
	}
}
