package admin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const inflightKeyPrefix = "admin:inflight:"

// InflightKey builds the guard key for one action on one account.
func InflightKey(kind ActionKind, targetID int64) string {
	return fmt.Sprintf("%s%s:%d", inflightKeyPrefix, kind, targetID)
}

// Guard marks admin actions as in flight so a repeated submit cannot fire
// the same backend call twice.
type Guard interface {
	// Acquire atomically takes key for at most lease. It reports false when
	// key is already held.
	Acquire(ctx context.Context, key string, lease time.Duration) (bool, error)
	// Held reports whether key is currently taken.
	Held(ctx context.Context, key string) (bool, error)
	// Release frees key once grace has elapsed.
	Release(ctx context.Context, key string, grace time.Duration) error
}

// RedisGuard shares in-flight state across instances through Redis.
type RedisGuard struct {
	client redis.UniversalClient
}

// NewRedisGuard constructs a Redis-backed guard.
func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client}
}

// Acquire uses SET NX so check and set happen in one step.
func (g *RedisGuard) Acquire(ctx context.Context, key string, lease time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, "1", lease).Result()
	if err != nil {
		return false, fmt.Errorf("guard: acquire %s: %w", key, err)
	}
	return ok, nil
}

func (g *RedisGuard) Held(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("guard: held %s: %w", key, err)
	}
	return n > 0, nil
}

// Release shortens the lease to grace instead of deleting the key.
func (g *RedisGuard) Release(ctx context.Context, key string, grace time.Duration) error {
	var err error
	if grace <= 0 {
		err = g.client.Del(ctx, key).Err()
	} else {
		err = g.client.PExpire(ctx, key, grace).Err()
	}
	if err != nil {
		return fmt.Errorf("guard: release %s: %w", key, err)
	}
	return nil
}

// MemoryGuard is the single-process Guard used when Redis is unavailable.
type MemoryGuard struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*memoryLease
}

type memoryLease struct {
	expires time.Time
	timer   *time.Timer
}

// NewMemoryGuard constructs an in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{now: time.Now, entries: make(map[string]*memoryLease)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, lease time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.heldLocked(key) {
		return false, nil
	}
	g.entries[key] = &memoryLease{expires: g.now().Add(lease)}
	return true, nil
}

func (g *MemoryGuard) Held(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heldLocked(key), nil
}

func (g *MemoryGuard) Release(_ context.Context, key string, grace time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.entries[key]
	if !ok {
		return nil
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if grace <= 0 {
		delete(g.entries, key)
		return nil
	}
	entry.expires = g.now().Add(grace)
	entry.timer = time.AfterFunc(grace, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.entries[key] == entry {
			delete(g.entries, key)
		}
	})
	return nil
}

func (g *MemoryGuard) heldLocked(key string) bool {
	entry, ok := g.entries[key]
	if !ok {
		return false
	}
	if !g.now().Before(entry.expires) {
		delete(g.entries, key)
		return false
	}
	return true
}
