// Package providercache remembers coordinates a provider could not resolve so
// repeated requests for them do not hit the provider again.
package providercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// EmptyResultCache wraps a Provider with a bounded LRU of "nothing found"
// answers that expire after ttl. Found places are never held here; they are
// persisted by the location store instead.
type EmptyResultCache struct {
	inner domain.Provider
	ttl   time.Duration
	cache *lruCache
}

// New creates a cache decorator around a provider. A non-positive maxEntries
// or ttl returns inner unchanged.
func New(inner domain.Provider, maxEntries int, ttl time.Duration) domain.Provider {
	if maxEntries <= 0 || ttl <= 0 {
		return inner
	}
	return &EmptyResultCache{
		inner: inner,
		ttl:   ttl,
		cache: newLRUCache(maxEntries),
	}
}

func (c *EmptyResultCache) Name() string  { return c.inner.Name() }
func (c *EmptyResultCache) Enabled() bool { return c.inner.Enabled() }

// Unwrap returns the provider without the cache, for callers that must
// always reach it.
func (c *EmptyResultCache) Unwrap() domain.Provider { return c.inner }

func (c *EmptyResultCache) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
	now := domain.Now()
	if expiry, ok := c.cache.get(key); ok {
		if now.Before(expiry) {
			return domain.GeocodingResult{}, nil
		}
		c.cache.delete(key)
	}

	result, err := c.inner.ReverseGeocode(ctx, p)
	if err != nil {
		return result, err
	}
	if !result.Found() {
		c.cache.put(key, now.Add(c.ttl))
	}
	return result, nil
}

// lruCache is a simple thread-safe LRU of expiry times.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key    string
	expiry time.Time
	prev   *entry
	next   *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}
	c.moveToFront(e)
	return e.expiry, true
}

func (c *lruCache) put(key string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.expiry = expiry
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, expiry: expiry}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
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
