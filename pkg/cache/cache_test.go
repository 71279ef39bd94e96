package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2953, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New[string, int](0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New[string, int](-3, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	c, err := New[string, int](1, time.Minute)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestLRUEviction(t *testing.T) {
	c, err := New[string, int](2, time.Hour)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestLRUEvictionFollowsAccess(t *testing.T) {
	c, err := New[string, int](2, time.Hour)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a") // b is now least recently used
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	clock := newFakeClock()
	c, err := New[string, string](2, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	c.Put("k", "old")
	clock.Advance(50 * time.Second)
	c.Put("k", "new")
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok, "overwrite resets the entry age")
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c, err := New[string, int](4, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	c.Put("k", 7)
	clock.Advance(59 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on access")
}

func TestTTLExpiryRealClock(t *testing.T) {
	c, err := New[string, int](4, 20*time.Millisecond)
	require.NoError(t, err)

	c.Put("k", 1)
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestPurge(t *testing.T) {
	clock := newFakeClock()
	c, err := New[int, int](10, time.Minute, WithClock(clock.Now))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c.Put(i, i)
	}
	clock.Advance(2 * time.Minute)
	c.Put(99, 99)

	assert.Equal(t, 3, c.Purge())
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Purge())
}

func TestInvalidateAndClear(t *testing.T) {
	c, err := New[string, int](4, time.Hour)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Invalidate("a")
	c.Invalidate("missing")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Stats().Evictions, "invalidation is not an eviction")

	c.Clear()
	assert.True(t, c.IsEmpty())
}

func TestPutIfCurrent(t *testing.T) {
	c, err := New[string, string](4, time.Hour)
	require.NoError(t, err)

	gen := c.Generation()
	assert.True(t, c.PutIfCurrent("a", "v1", gen))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	// A write lands between the slow read and the fill
	stale := c.Generation()
	c.Invalidate("a")
	c.Put("a", "v2")
	assert.False(t, c.PutIfCurrent("a", "v1", stale))

	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", v)

	stale = c.Generation()
	c.Clear()
	assert.False(t, c.PutIfCurrent("b", "old", stale))
	assert.True(t, c.IsEmpty())
}

func TestStatsAndMetrics(t *testing.T) {
	name := fmt.Sprintf("stats-%d", time.Now().UnixNano())
	c, err := New[string, int](1, time.Hour, WithName(name))
	require.NoError(t, err)

	c.Put("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("nope")
	c.Put("b", 2)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 1, stats.Capacity)
	assert.InDelta(t, 2.0/3.0, stats.HitRatio(), 0.0001)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(name)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEvictionsTotal.WithLabelValues(name, "lru")))
}

func TestConcurrentAccess(t *testing.T) {
	c, err := New[int, int](64, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := (w*500 + i) % 100
				c.Put(k, i)
				c.Get(k)
				if i%50 == 0 {
					c.Invalidate(k)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
