package openmeteo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
)

// DefaultCacheSize bounds the number of distinct searches kept in memory.
const DefaultCacheSize = 1000

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache of search results.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &CachedGeocoder{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) SearchPlaces(ctx context.Context, name string, count int) ([]domain.Place, error) {
	key := fmt.Sprintf("search:%s|%d", strings.ToLower(strings.TrimSpace(name)), count)
	if places, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return slices.Clone(places), nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	places, err := c.inner.SearchPlaces(ctx, name, count)
	if err != nil {
		return places, err
	}
	// Empty results are not cached so a place missing from the index today
	// is looked up again later.
	if len(places) > 0 {
		c.cache.put(key, slices.Clone(places))
	}
	return places, nil
}

// lruCache is a small thread-safe LRU cache keyed by normalized query.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key        string
	value      []domain.Place
	prev, next *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) get(key string) ([]domain.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	for len(c.entries) > c.maxEntries && c.tail != nil {
		delete(c.entries, c.tail.key)
		c.unlink(c.tail)
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) pushFront(e *entry) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
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
	e.prev, e.next = nil, nil
}
