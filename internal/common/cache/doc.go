// Package cache provides an in-process TTL cache behind a small interface.
//
// LocalCache wraps github.com/patrickmn/go-cache. Expired items are removed
// by a background janitor every cleanup interval.
//
// Usage:
//
//	c := cache.NewLocalCache(5*time.Minute, 10*time.Minute)
//	c.Set(ctx, "key", "value", time.Minute)
//	val, found := c.Get(ctx, "key")
package cache
