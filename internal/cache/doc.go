/*
Package cache provides the in-memory cache for decoded repository objects.

Repository objects are content addressed, so a cached entry never goes
stale: the same key always maps to the same bytes. The cache therefore only
bounds memory, evicting the least recently used entries once the total size
of cached values exceeds the configured capacity.

	┌─────────────────────────────────────────────┐
	│        Repository (trees, data chunks)      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         LRUCache (types.Cache impl)         │  ← This Package
	│   byte-weighted, optional entry limit       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Backend (local directory, S3)        │
	└─────────────────────────────────────────────┘

# Usage

	c := cache.NewLRUCache(&cache.CacheConfig{MaxSize: 256 << 20})
	if data, ok := c.Get("data:" + id.String()); ok {
		return data, nil
	}
	c.Put("data:"+id.String(), chunk)

Values are stored and returned without copying; callers must treat them as
read-only.

Hits and misses are counted in Stats and, when a collector is attached with
SetMetrics, reported to it as well.
*/
package cache
