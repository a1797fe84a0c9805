// Package cache provides a thread-safe LRU cache for data derived from
// immutable inputs, such as the styles extracted from a stored template.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/report"
)

// Cache is a generic LRU cache.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Remove(key K)
	Len() int
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	MaxSize   int   `json:"max_size"`
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{MaxSize: 64}
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

type lruCache[K comparable, V any] struct {
	mu      sync.Mutex
	config  Config
	now     func() time.Time
	entries map[K]*list.Element
	order   *list.List // front is most recently used
	stats   Stats
}

// NewLRU creates an LRU cache with the given configuration.
func NewLRU[K comparable, V any](config Config) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	return &lruCache[K, V]{
		config:  config,
		now:     time.Now,
		entries: make(map[K]*list.Element),
		order:   list.New(),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.config.TTL > 0 && !c.now().Before(e.expiresAt) {
		c.remove(el)
		c.stats.Misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.config.TTL > 0 {
		expires = c.now().Add(c.config.TTL)
	}
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value, e.expiresAt = value, expires
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expires})
	if c.config.MaxSize > 0 && c.order.Len() > c.config.MaxSize {
		c.remove(c.order.Back())
		c.stats.Evictions++
	}
}

func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.order.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

func (c *lruCache[K, V]) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry[K, V]).key)
}

// StyleCache holds style fragments extracted from template archives, keyed
// by the archive's SHA-256. Stored archives never change, so entries only
// leave the cache by eviction or when the template is deleted.
type StyleCache struct {
	lru Cache[string, report.Fragment]
}

// NewStyleCache creates a style cache.
func NewStyleCache(config Config) *StyleCache {
	return &StyleCache{lru: NewLRU[string, report.Fragment](config)}
}

// Get returns a copy of the fragment cached for checksum.
func (c *StyleCache) Get(checksum string) (report.Fragment, bool) {
	frag, ok := c.lru.Get(checksum)
	if !ok {
		return nil, false
	}
	return frag.Merge(nil), true
}

// Put caches a copy of frag for checksum.
func (c *StyleCache) Put(checksum string, frag report.Fragment) {
	c.lru.Put(checksum, frag.Merge(nil))
}

// Remove drops the entry for checksum.
func (c *StyleCache) Remove(checksum string) {
	c.lru.Remove(checksum)
}

// Stats returns cache statistics.
func (c *StyleCache) Stats() Stats {
	return c.lru.Stats()
}
