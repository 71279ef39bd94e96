/*
Package cache provides a generic in-memory LRU cache with per-entry TTL.

Entries are evicted in strict least-recently-used order once the cache is
at capacity, independent of their age. Age is checked lazily: Get treats an
entry older than the TTL as a miss and drops it, and Purge sweeps every
expired entry at once.

	c, err := cache.New[string, []byte](1024, 5*time.Minute, cache.WithName("users"))
	if err != nil {
		return err
	}
	c.Put("user:1", data)
	if v, ok := c.Get("user:1"); ok {
		...
	}

Hits, misses and evictions are kept in Stats and exported as the
verseguy_cache_* Prometheus counters, labelled by the cache name.
*/
package cache
