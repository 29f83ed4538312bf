package openweather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

// CachedProvider wraps a Provider with an in-memory LRU cache whose entries
// expire after ttl.
type CachedProvider struct {
	inner   domain.Provider
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner domain.Provider, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedProvider) CurrentWeather(ctx context.Context, q domain.Query) (domain.Reading, error) {
	key := cacheKey(q)
	now := c.clock.Now()
	if e, ok := c.cache.get(key); ok && now.Sub(e.storedAt) < c.ttl {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return e.value, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	result, err := c.inner.CurrentWeather(ctx, q)
	if err != nil {
		return result, err
	}
	c.cache.put(key, result, now)
	return result, nil
}

// cacheKey ignores the API key: two sensors asking for the same place in
// the same units and language share an entry.
func cacheKey(q domain.Query) string {
	return fmt.Sprintf("%s|%.4f,%.4f|%s|%s", q.City, q.Latitude, q.Longitude, q.Units, q.Lang)
}

// lruCache is a simple thread-safe LRU cache for Readings.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key      string
	value    domain.Reading
	storedAt time.Time
	prev     *entry
	next     *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// get returns a copy of the entry so callers can read it without the lock.
func (c *lruCache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	c.moveToFront(e)
	return entry{key: e.key, value: e.value, storedAt: e.storedAt}, true
}

func (c *lruCache) put(key string, value domain.Reading, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.storedAt = at
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, storedAt: at}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
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
