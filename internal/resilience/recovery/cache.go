package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

type cacheEntry struct {
	value    any
	storedAt time.Time
}

// Cache is a short-lived keyed result cache. Expired entries are kept until
// the stale horizon so they can be served when recomputation fails.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	staleFor time.Duration
	entries  map[string]cacheEntry
	now      func() time.Time
}

// NewCache creates a cache. staleFor is how long past ttl an entry survives.
func NewCache(ttl, staleFor time.Duration) *Cache {
	return &Cache{
		ttl:      ttl,
		staleFor: staleFor,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Set stores a value.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
}

// Get returns the value, whether it is still fresh, and whether it exists at all.
func (c *Cache) Get(key string) (value any, fresh bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	return e.value, c.now().Sub(e.storedAt) < c.ttl, true
}

// Prune drops entries past the stale horizon and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if c.now().Sub(e.storedAt) >= c.ttl+c.staleFor {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type cacheStrategy struct {
	m *Manager
}

func (s *cacheStrategy) Name() domain.Strategy { return domain.StrategyCache }

// Recover serves a fresh cached value, else recomputes and refreshes, else
// serves a stale value, else re-raises.
func (s *cacheStrategy) Recover(
	ctx context.Context,
	f *domain.RecoverableFailure,
	opts Options,
) (Result, error) {
	key := opts.CacheKey
	if key == "" {
		key = f.ID
	}

	cached, fresh, ok := s.m.cache.Get(key)
	if ok && fresh {
		return Result{Success: true, Value: cached, Strategy: domain.StrategyCache}, nil
	}

	lastErr := f.Cause
	if opts.Operation != nil {
		v, err := run(ctx, opts.Operation, opts.Timeout)
		if err == nil {
			s.m.cache.Set(key, v)
			return Result{Success: true, Value: v, Strategy: domain.StrategyCache}, nil
		}
		lastErr = err
	}

	if ok {
		return Result{Success: true, Value: cached, Strategy: domain.StrategyCache, Stale: true}, nil
	}
	if lastErr == nil {
		lastErr = ErrNoOperation
	}
	return Result{}, newUnrecoverable(f, domain.StrategyCache, lastErr)
}
