package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalBackend keeps one token bucket per key in process memory. A bucket
// holds limit tokens and refills at limit per window.
type LocalBackend struct {
	mu            sync.Mutex
	limiters      map[string]*limiterEntry
	cleanupPeriod time.Duration
	lastCleanup   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewLocalBackend creates a local backend that forgets keys idle for longer
// than cleanupPeriod.
func NewLocalBackend(cleanupPeriod time.Duration) *LocalBackend {
	if cleanupPeriod <= 0 {
		cleanupPeriod = 10 * time.Minute
	}
	return &LocalBackend{
		limiters:      make(map[string]*limiterEntry),
		cleanupPeriod: cleanupPeriod,
		lastCleanup:   time.Now(),
	}
}

func (b *LocalBackend) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if limit <= 0 || window <= 0 {
		return false, 1, nil
	}
	limiter := b.limiterFor(key, limit, window)

	allowed := limiter.Allow()
	used := limit - int(limiter.Tokens())
	if used > limit || !allowed {
		used = limit + 1
	}
	return allowed, used, nil
}

func (b *LocalBackend) limiterFor(key string, limit int, window time.Duration) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastCleanup) > b.cleanupPeriod {
		b.cleanup(now)
	}

	entry, ok := b.limiters[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		entry = &limiterEntry{limiter: rate.NewLimiter(every, limit)}
		b.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

func (b *LocalBackend) cleanup(now time.Time) {
	cutoff := now.Add(-b.cleanupPeriod)
	for key, entry := range b.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(b.limiters, key)
		}
	}
	b.lastCleanup = now
}

// Counter is the sliding window counter of the Redis client.
type Counter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RedisBackend shares counters between instances through Redis.
type RedisBackend struct {
	counter Counter
}

func NewRedisBackend(counter Counter) *RedisBackend {
	return &RedisBackend{counter: counter}
}

func (b *RedisBackend) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	return b.counter.CheckRateLimit(ctx, key, limit, window)
}
