package cache

import (
	"container/list"
	"sync"

	"github.com/objectfs/snapfs/pkg/types"
)

// LRUCache implements a thread-safe LRU cache weighted by value size
type LRUCache struct {
	mu          sync.Mutex
	capacity    int64
	maxEntries  int
	currentSize int64
	items       map[string]*list.Element
	evictList   *list.List

	metrics types.MetricsCollector

	// Statistics
	stats types.CacheStats
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	MaxSize    int64 `yaml:"max_size"`
	MaxEntries int   `yaml:"max_entries"`
}

// cacheItem is the value stored in each list element
type cacheItem struct {
	key  string
	data []byte
}

// NewLRUCache creates a new LRU cache
func NewLRUCache(config *CacheConfig) *LRUCache {
	if config == nil {
		config = &CacheConfig{MaxSize: 256 * 1024 * 1024}
	}

	return &LRUCache{
		capacity:   config.MaxSize,
		maxEntries: config.MaxEntries,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		stats: types.CacheStats{
			Capacity: config.MaxSize,
		},
	}
}

// SetMetrics attaches a collector that receives hit and miss events.
func (c *LRUCache) SetMetrics(metrics types.MetricsCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves data from the cache
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		metrics := c.metrics
		c.mu.Unlock()
		if metrics != nil {
			metrics.RecordCacheMiss(key, 0)
		}
		return nil, false
	}

	c.evictList.MoveToFront(element)
	c.stats.Hits++
	c.updateHitRate()
	data := element.Value.(*cacheItem).data
	metrics := c.metrics
	c.mu.Unlock()

	if metrics != nil {
		metrics.RecordCacheHit(key, int64(len(data)))
	}
	return data, true
}

// Put stores data in the cache. Values larger than the whole capacity are
// not cached.
func (c *LRUCache) Put(key string, data []byte) {
	size := int64(len(data))
	if c.capacity > 0 && size > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		item := element.Value.(*cacheItem)
		c.currentSize += size - int64(len(item.data))
		item.data = data
		c.evictList.MoveToFront(element)
		c.evictIfNeeded()
		c.reportSize()
		return
	}

	c.items[key] = c.evictList.PushFront(&cacheItem{key: key, data: data})
	c.currentSize += size
	c.evictIfNeeded()
	c.reportSize()
}

// reportSize publishes the current size to collectors that track it.
// Callers hold c.mu.
func (c *LRUCache) reportSize() {
	if sizer, ok := c.metrics.(interface{ UpdateCacheSize(int64) }); ok {
		sizer.UpdateCacheSize(c.currentSize)
	}
}

// Delete removes an item from the cache
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		c.removeElement(element)
		c.reportSize()
	}
}

// Len returns the number of cached entries
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the current cache size
func (c *LRUCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Stats returns cache statistics
func (c *LRUCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.currentSize
	if c.capacity > 0 {
		stats.Utilization = float64(c.currentSize) / float64(c.capacity)
	}
	return stats
}

// Clear clears all items from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Evictions += uint64(len(c.items))
	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	c.reportSize()
}

// Resize changes the cache capacity
func (c *LRUCache) Resize(newCapacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = newCapacity
	c.stats.Capacity = newCapacity
	c.evictIfNeeded()
	c.reportSize()
}

func (c *LRUCache) removeElement(element *list.Element) {
	item := element.Value.(*cacheItem)
	c.evictList.Remove(element)
	delete(c.items, item.key)
	c.currentSize -= int64(len(item.data))
}

func (c *LRUCache) evictIfNeeded() {
	for c.capacity > 0 && c.currentSize > c.capacity && c.evictList.Len() > 0 {
		c.evictOldest()
	}

	if c.maxEntries > 0 {
		for len(c.items) > c.maxEntries && c.evictList.Len() > 0 {
			c.evictOldest()
		}
	}
}

func (c *LRUCache) evictOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}
	c.removeElement(element)
	c.stats.Evictions++
}

func (c *LRUCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
