package dataloader

import (
	"container/list"
	"fmt"
	"sync"
)

// imageCache is an LRU cache of decoded, resized images keyed by image
// name. Augmentation happens after the cache, so cached entries are the
// unaugmented tensors and stay valid across epochs.
type imageCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int

	hits   int64
	misses int64
}

func newImageCache(maxSize int) *imageCache {
	return &imageCache{
		entries: make(map[string][]float32),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

func (c *imageCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if elem, ok := c.lruMap[key]; ok {
		c.lru.MoveToFront(elem)
	}
	c.hits++
	return data, true
}

func (c *imageCache) put(key string, data []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		if elem, ok := c.lruMap[key]; ok {
			c.lru.MoveToFront(elem)
		}
		return
	}

	c.lruMap[key] = c.lru.PushFront(key)
	c.entries[key] = data

	for len(c.entries) > c.maxSize && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		evicted := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.lruMap, evicted)
		delete(c.entries, evicted)
	}
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (s CacheStats) String() string {
	total := s.Hits + s.Misses
	rate := 0.0
	if total > 0 {
		rate = float64(s.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("cache: %d entries, %d hits, %d misses (%.1f%% hit rate)", s.Size, s.Hits, s.Misses, rate)
}

func (c *imageCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.entries), Hits: c.hits, Misses: c.misses}
}
