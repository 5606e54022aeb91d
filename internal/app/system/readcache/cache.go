// Package readcache is an in-process, TTL-based read-through cache for
// expensive per-user aggregates (dashboard stats, streaks, lists).
//
// Entries expire after a fixed TTL and are evicted lazily when a lookup
// finds them stale; an optional background sweep reclaims entries nobody
// asks for again. Failed computations are never cached. Concurrent misses
// on the same key each compute unless single-flight is enabled.
package readcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/metrics"
	"github.com/consistencygrid/consistencygrid/internal/app/system/tasks"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the lifetime of an entry when none is configured.
const DefaultTTL = 60 * time.Second

const defaultComputeTimeout = 10 * time.Second

// Kind namespaces cache keys by the aggregate they hold.
type Kind string

const (
	KindDashboardStats Kind = "dashboard-stats"
	KindStreaks        Kind = "streaks"
	KindHabits         Kind = "habits"
	KindGoals          Kind = "goals"
	KindReminders      Kind = "reminders"
	KindSettings       Kind = "settings"
)

// AllKinds lists every key kind.
func AllKinds() []Kind {
	return []Kind{
		KindDashboardStats,
		KindStreaks,
		KindHabits,
		KindGoals,
		KindReminders,
		KindSettings,
	}
}

// Key builds the cache key "<kind>:<userID>[:part...]".
func Key(kind Kind, userID string, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte(':')
	b.WriteString(userID)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// kindOf extracts the kind segment of key for metric labels.
func kindOf(key string) string {
	if k, _, ok := strings.Cut(key, ":"); ok {
		return k
	}
	return "unknown"
}

// Config controls cache behavior. Zero values select defaults.
type Config struct {
	TTL           time.Duration // entry lifetime (default 60s)
	MaxEntries    int           // 0 means unbounded
	SingleFlight  bool          // de-duplicate concurrent misses per key
	SweepInterval time.Duration // 0 disables the background sweep
	Clock         clock.Clock

	// ComputeTimeout bounds a shared single-flight computation, which runs
	// detached from any one caller's cancellation (default 10s).
	ComputeTimeout time.Duration
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl           time.Duration
	maxEntries    int
	dedupe        bool
	sharedTimeout time.Duration
	sweepInterval time.Duration
	group         singleflight.Group

	clock  clock.Clock
	logger *zap.Logger
	runner *tasks.Runner
}

// New creates a Cache.
func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	shared := cfg.ComputeTimeout
	if shared <= 0 {
		shared = defaultComputeTimeout
	}
	return &Cache{
		entries:       make(map[string]entry),
		ttl:           ttl,
		maxEntries:    cfg.MaxEntries,
		dedupe:        cfg.SingleFlight,
		sharedTimeout: shared,
		sweepInterval: cfg.SweepInterval,
		clock:         clock.OrReal(cfg.Clock),
		logger:        logger,
	}
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the live value for key. A stale entry is removed and reported
// as a miss.
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Before(e.expiresAt) {
		return e.value, true
	}

	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && !now.Before(cur.expiresAt) {
		delete(c.entries, key)
		metrics.CacheEviction("expired", 1)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores value under key for ttl (the cache default when ttl <= 0).
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		metrics.CacheEviction("expired", c.sweepLocked(now))
		if len(c.entries) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key equal to prefix or nested under it
// (prefix followed by ':'). It returns the number of entries removed.
func (c *Cache) DeletePrefix(prefix string) int {
	nested := prefix + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if k == prefix || strings.HasPrefix(k, nested) {
			delete(c.entries, k)
			n++
		}
	}
	metrics.CacheEviction("invalidated", n)
	return n
}

// PurgeUser removes the listed kinds for userID.
func (c *Cache) PurgeUser(userID string, kinds ...Kind) int {
	n := 0
	for _, k := range kinds {
		n += c.DeletePrefix(Key(k, userID))
	}
	return n
}

// Len returns the number of stored entries, including stale ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	n := c.sweepLocked(now)
	c.mu.Unlock()

	metrics.CacheEviction("expired", n)
	return n
}

func (c *Cache) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// evictSoonestLocked drops the entry closest to expiry.
func (c *Cache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	if victim == "" {
		return
	}
	delete(c.entries, victim)
	metrics.CacheEviction("capacity", 1)
	c.logger.Warn("read cache at capacity; evicted entry",
		zap.Int("max_entries", c.maxEntries),
		zap.String("kind", kindOf(victim)))
}

/*─────────────────────────────────────────────────────────────────────────────*
| Read-through                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// GetOrCompute returns the cached value for key or computes, stores and
// returns it using the cache's default TTL.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	return GetOrComputeTTL(ctx, c, key, 0, compute)
}

// GetOrComputeTTL is GetOrCompute with an explicit TTL (<= 0 uses the
// cache default). A compute error is returned as-is and nothing is stored.
func GetOrComputeTTL[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	kind := kindOf(key)

	if v, ok := lookup[T](c, key); ok {
		metrics.CacheLookup(kind, true)
		return v, nil
	}
	metrics.CacheLookup(kind, false)

	if !c.dedupe {
		return fill(ctx, c, key, ttl, compute)
	}

	// The shared computation is detached from the caller that started it;
	// each caller still stops waiting on its own ctx.
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := lookup[T](c, key); ok {
			return v, nil
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()
		return fill(sctx, c, key, ttl, compute)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		if v, ok := res.Val.(T); ok {
			return v, nil
		}
	}
	return fill(ctx, c, key, ttl, compute)
}

func lookup[T any](c *Cache, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		c.logger.Warn("read cache entry has unexpected type; recomputing",
			zap.String("kind", kindOf(key)))
		return zero, false
	}
	return v, true
}

func fill[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Background sweep                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// Start launches the periodic sweep if a sweep interval is configured.
func (c *Cache) Start() {
	if c.sweepInterval <= 0 || c.runner != nil {
		return
	}
	c.runner = tasks.New(c.logger)
	c.runner.Register(tasks.Job{
		Name:     "read-cache-sweep",
		Interval: c.sweepInterval,
		Run: func(ctx context.Context) error {
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("swept expired cache entries", zap.Int("removed", n))
			}
			return nil
		},
	})
	c.runner.Start()
}

// Stop halts the sweep, waiting at most until ctx is done.
func (c *Cache) Stop(ctx context.Context) error {
	if c.runner == nil {
		return nil
	}
	err := c.runner.Stop(ctx)
	c.runner = nil
	return err
}
