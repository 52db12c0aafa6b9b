// Package cache is the shared TTL cache in front of chain reads. Concurrent
// misses for one key share a single fetch.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/errs"
	"github.com/coldbell/chronos/backend/internal/metrics"
)

const DefaultTTL = 30 * time.Second

type Key struct {
	Wallet string
	Query  string
}

// String length-prefixes each field so no two keys share a form.
func (k Key) String() string {
	return strconv.Itoa(len(k.Query)) + ":" + k.Query + strconv.Itoa(len(k.Wallet)) + ":" + k.Wallet
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// generation identifies a key's state between invalidations. A fetch only
// stores its result if the generation it started under is still current.
type generation struct {
	epoch uint64
	n     uint64
}

type Cache[V any] struct {
	ttl     time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[Key]entry[V]
	epoch   uint64
	gens    map[Key]uint64
	group   singleflight.Group
}

func New[V any](ttl time.Duration, clk clock.Clock, m *metrics.Metrics) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Cache[V]{ttl: ttl, clock: clk, metrics: m, entries: make(map[Key]entry[V]), gens: make(map[Key]uint64)}
}

// GetOrFetch returns the cached value for key while it is fresh, otherwise
// the result of fetch. Errors from fetch are returned and not stored.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key Key, fetch func(context.Context) (V, error)) (V, error) {
	if v, err := c.lookup(key); err == nil {
		c.metrics.CacheLookups.WithLabelValues(key.Query, "hit").Inc()
		return v, nil
	}

	// The shared fetch outlives any single caller giving up; the chain
	// client bounds it with its own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	gen := c.generation(key)
	ch := c.group.DoChan(gen.flightKey(key), func() (any, error) {
		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.currentLocked(key) == gen {
			c.entries[key] = entry[V]{value: v, fetchedAt: c.clock.Now()}
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		result := "miss"
		if res.Shared {
			result = "shared"
		}
		c.metrics.CacheLookups.WithLabelValues(key.Query, result).Inc()
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *Cache[V]) generation(key Key) generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLocked(key)
}

func (c *Cache[V]) currentLocked(key Key) generation {
	return generation{epoch: c.epoch, n: c.gens[key]}
}

// flightKey scopes the singleflight group to one generation, so callers
// arriving after an invalidation start a fresh read instead of joining the
// one that began before it.
func (g generation) flightKey(key Key) string {
	return strconv.FormatUint(g.epoch, 10) + "/" + strconv.FormatUint(g.n, 10) + "/" + key.String()
}

// lookup reports StaleCache for both absent and expired entries.
func (c *Cache[V]) lookup(key Key) (V, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.clock.Now().Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}
	var zero V
	if ok {
		return zero, errs.New(errs.KindStaleCache, key.String(), "entry expired")
	}
	return zero, errs.New(errs.KindStaleCache, key.String(), "no entry")
}

// Set stores a value fetched elsewhere, for example right after a write.
func (c *Cache[V]) Set(key Key, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: v, fetchedAt: c.clock.Now()}
}

// Invalidate drops the entry and discards the result of any fetch for key
// that is still in flight.
func (c *Cache[V]) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group.Forget(c.currentLocked(key).flightKey(key))
	delete(c.entries, key)
	c.gens[key]++
}

// Purge drops every entry. In-flight fetches complete for their callers but
// are not stored.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.gens)
	c.epoch++
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
