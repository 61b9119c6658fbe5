package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is an in-memory store with optional LRU eviction.
// A capacity of zero keeps every entry.
type MemoryCache[V any] struct {
	capacity int // Maximum number of entries

	// LRU implementation
	items    map[string]*list.Element
	eviction *list.List

	mu sync.RWMutex

	evictions int64
}

// memoryCacheEntry represents an entry in the memory cache
type memoryCacheEntry[V any] struct {
	key       string
	value     V
	timestamp time.Time
	hits      int64
}

// NewMemoryCache creates a new memory cache holding at most capacity entries.
func NewMemoryCache[V any](capacity int) *MemoryCache[V] {
	if capacity < 0 {
		capacity = 0
	}
	return &MemoryCache[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}

	// Move to front (most recently used)
	c.eviction.MoveToFront(elem)
	entry := elem.Value.(*memoryCacheEntry[V])
	entry.hits++
	return entry.value, true
}

// Put stores a value in the cache, evicting the least recently used entry
// when the cache is bounded and full.
func (c *MemoryCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*memoryCacheEntry[V])
		entry.value = value
		entry.timestamp = time.Now()
		return
	}

	for c.capacity > 0 && c.eviction.Len() >= c.capacity {
		c.evictOldest()
	}

	entry := &memoryCacheEntry[V]{
		key:       key,
		value:     value,
		timestamp: time.Now(),
	}
	c.items[key] = c.eviction.PushFront(entry)
}

// Delete removes an entry from the cache.
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries from the cache.
func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
}

// Len returns the number of stored entries.
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Contains checks if a key exists in the cache without updating LRU.
func (c *MemoryCache[V]) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[key]
	return ok
}

// Keys returns all keys from most to least recently used.
func (c *MemoryCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*memoryCacheEntry[V]).key)
	}
	return keys
}

// Evictions returns how many entries were dropped to respect the capacity.
func (c *MemoryCache[V]) Evictions() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.evictions
}

// snapshot copies the entries, least recently used first, so that replaying
// them through Put restores the same LRU order.
func (c *MemoryCache[V]) snapshot() []snapshotEntry[V] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]snapshotEntry[V], 0, len(c.items))
	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*memoryCacheEntry[V])
		entries = append(entries, snapshotEntry[V]{
			Key:       entry.key,
			Value:     entry.value,
			Timestamp: entry.timestamp,
		})
	}
	return entries
}

// evictOldest removes the least recently used item (must be called with lock held).
func (c *MemoryCache[V]) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions++
	}
}

// removeElement removes an element from the cache (must be called with lock held).
func (c *MemoryCache[V]) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*memoryCacheEntry[V]).key)
}
