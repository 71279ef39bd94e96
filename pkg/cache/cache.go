package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
)

// ErrInvalidCapacity is returned by New when capacity is not positive
var ErrInvalidCapacity = errors.New("cache capacity must be greater than zero")

const (
	evictReasonLRU     = "lru"
	evictReasonExpired = "expired"
	evictReasonManual  = "invalidated"
)

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
	Capacity  int
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a Cache
type Option func(*options)

type options struct {
	name string
	now  func() time.Time
}

// WithName sets the "cache" label used on exported metrics
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Cache is a fixed-capacity LRU cache whose entries also expire after ttl.
// It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List // front = most recently used
	name     string
	now      func() time.Time
	gen      uint64 // advanced by Invalidate and Clear

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most capacity entries, each valid for ttl
// after its last Put.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	o := options{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		name:     o.name,
		now:      o.now,
	}, nil
}

// Get returns the value for key if present and not expired. An expired
// entry is evicted and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.recordMiss()
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.removeElement(el, evictReasonExpired)
		c.recordMiss()
		return zero, false
	}

	c.order.MoveToFront(el)
	c.recordHit()
	return e.value, true
}

// Put inserts or overwrites key, resetting its age. When the cache is full
// the least recently used entry is evicted, regardless of its age.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
}

// Generation returns a counter that advances on every Invalidate and Clear.
// Pair it with PutIfCurrent to fill the cache from a slower source.
func (c *Cache[K, V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// PutIfCurrent stores value only if nothing was invalidated since gen was
// read, so a fill that raced with a write cannot cache the older value.
// It reports whether the value was stored.
func (c *Cache[K, V]) PutIfCurrent(key K, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.put(key, value)
	return true
}

// must hold mu
func (c *Cache[K, V]) put(key K, value V) {
	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.insertedAt = now
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest, evictReasonLRU)
		}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, insertedAt: now})
}

// Invalidate removes key if present and advances the generation
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if el, ok := c.items[key]; ok {
		c.removeElement(el, evictReasonManual)
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	clear(c.items)
	c.order.Init()
}

// Purge evicts every expired entry and returns how many were removed
func (c *Cache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[K, V])) {
			c.removeElement(el, evictReasonExpired)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of entries held, including ones that have expired
// but not yet been observed by Get or Purge.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) IsEmpty() bool {
	return c.Len() == 0
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       c.order.Len(),
		Capacity:  c.capacity,
	}
}

// must hold mu
func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.now().Sub(e.insertedAt) >= c.ttl
}

// must hold mu
func (c *Cache[K, V]) removeElement(el *list.Element, reason string) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
	if reason == evictReasonManual {
		return
	}
	c.evictions++
	metrics.CacheEvictionsTotal.WithLabelValues(c.name, reason).Inc()
}

func (c *Cache[K, V]) recordHit() {
	c.hits++
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
}

func (c *Cache[K, V]) recordMiss() {
	c.misses++
	metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
}
