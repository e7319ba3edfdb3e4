package openmeteo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/refresh"
	"github.com/jonboulle/clockwork"
)

// CachedSource wraps a refresh.Source with an in-memory LRU cache whose
// entries expire after a TTL.
type CachedSource struct {
	inner   refresh.Source
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a weather source.
func NewCachedSource(inner refresh.Source, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedSource) Current(ctx context.Context, lat, lon float64) (domain.Reading, error) {
	key := fmt.Sprintf("cur:%.4f,%.4f", lat, lon)
	return c.lookup(key, func() (domain.Reading, error) {
		return c.inner.Current(ctx, lat, lon)
	})
}

func (c *CachedSource) ForecastAt(ctx context.Context, lat, lon float64, at time.Time) (domain.Reading, error) {
	key := fmt.Sprintf("fc:%.4f,%.4f@%s", lat, lon, at.UTC().Truncate(time.Hour).Format(hourLayout))
	return c.lookup(key, func() (domain.Reading, error) {
		return c.inner.ForecastAt(ctx, lat, lon, at)
	})
}

func (c *CachedSource) lookup(key string, fetch func() (domain.Reading, error)) (domain.Reading, error) {
	if reading, ok := c.cache.get(key); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return reading, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	reading, err := fetch()
	if err != nil {
		// Failures are not cached so the next poll retries upstream.
		return reading, err
	}
	c.cache.put(key, reading)
	return reading, nil
}

var _ refresh.Source = (*CachedSource)(nil)

// lruCache is a simple thread-safe LRU cache for Readings with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.Reading
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Reading{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return domain.Reading{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
