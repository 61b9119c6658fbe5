package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ResolveFunc produces the value for a fingerprint that is not cached yet.
type ResolveFunc[V any] func(ctx context.Context) (V, error)

// Cache stores resolved values by fingerprint and coalesces concurrent
// resolutions of the same fingerprint into a single call.
type Cache[V any] struct {
	config Config
	mem    *MemoryCache[V]
	group  singleflight.Group
	logger *log.Logger

	mu          sync.Mutex
	hits        int64
	misses      int64
	resolutions int64
	failures    int64
	inFlight    int
	lastResolve time.Time
}

// New creates a cache. A nil logger falls back to the default logger.
func New[V any](cfg Config, logger *log.Logger) *Cache[V] {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.CompressionLevel <= 0 {
		cfg.CompressionLevel = DefaultConfig().CompressionLevel
	}
	return &Cache[V]{
		config: cfg,
		mem:    NewMemoryCache[V](cfg.MaxEntries),
		logger: logger,
	}
}

// Get retrieves a stored value and records a hit or a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.mem.Get(key)
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return v, ok
}

// Delete drops a fingerprint.
func (c *Cache[V]) Delete(key string) {
	c.mem.Delete(key)
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	return c.mem.Len()
}

// Resolve returns the stored value for key, or runs fn to produce it. While a
// resolution for key is running, later callers wait for its result instead of
// starting another one. The shared resolution is not cancelled when the
// caller that started it gives up; each caller stops waiting when its own ctx
// is done. Only successful results are stored.
//
// The boolean reports whether the value came from the cache without waiting
// on a resolution.
func (c *Cache[V]) Resolve(ctx context.Context, key string, fn ResolveFunc[V]) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another resolution may have landed between the miss and this call.
		if v, ok := c.mem.Get(key); ok {
			return v, nil
		}

		c.mu.Lock()
		c.inFlight++
		c.mu.Unlock()

		start := time.Now()
		v, err := fn(detached)

		c.mu.Lock()
		c.inFlight--
		c.lastResolve = time.Now()
		if err != nil {
			c.failures++
		} else {
			c.resolutions++
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Debug("cache: resolution failed", "key", short(key), "err", err)
			return v, err
		}
		c.mem.Put(key, v)
		c.logger.Debug("cache: resolved", "key", short(key), "took", time.Since(start))
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		MaxEntries:  c.config.MaxEntries,
		Entries:     c.mem.Len(),
		InFlight:    c.inFlight,
		Hits:        c.hits,
		Misses:      c.misses,
		Resolutions: c.resolutions,
		Failures:    c.failures,
		Evictions:   c.mem.Evictions(),
		LastResolve: c.lastResolve,
	}
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
