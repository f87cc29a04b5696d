package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictFunc is called for every entry that leaves the cache, whether it
// expired, was pushed out by size or was deleted. It runs after the cache lock
// is released.
type EvictFunc[T comparable] func(key string, value T)

// LRUCache bounds entries by count and by idle time. Every Get refreshes the
// entry's deadline.
type LRUCache[T comparable] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	onEvict EvictFunc[T]
	now     func() time.Time
}

type cacheItem[T comparable] struct {
	key       string
	data      T
	expiresAt time.Time
}

type evicted[T comparable] struct {
	key  string
	data T
}

// Option customizes an LRUCache.
type Option[T comparable] func(*LRUCache[T])

// WithEvict registers fn for evicted entries.
func WithEvict[T comparable](fn EvictFunc[T]) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// WithClock replaces time.Now.
func WithClock[T comparable](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

func NewLRUCache[T comparable](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	var gone []evicted[T]

	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		gone = append(gone, c.removeElement(elem))
		c.mu.Unlock()
		c.notify(gone)
		return zero, false
	}
	item.expiresAt = now.Add(c.ttl)
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores data under key. Replacing an existing value evicts the old one
// unless it is the same value.
func (c *LRUCache[T]) Set(key string, data T) {
	var gone []evicted[T]

	c.mu.Lock()
	item := &cacheItem[T]{key: key, data: data, expiresAt: c.now().Add(c.ttl)}
	if elem, exists := c.items[key]; exists {
		old := elem.Value.(*cacheItem[T])
		if old.data != data {
			gone = append(gone, evicted[T]{key: key, data: old.data})
		}
		elem.Value = item
		c.lru.MoveToFront(elem)
	} else {
		c.items[key] = c.lru.PushFront(item)
		for c.lru.Len() > c.maxSize {
			gone = append(gone, c.removeElement(c.lru.Back()))
		}
	}
	c.mu.Unlock()
	c.notify(gone)
}

func (c *LRUCache[T]) Delete(key string) {
	var gone []evicted[T]
	c.mu.Lock()
	if elem, exists := c.items[key]; exists {
		gone = append(gone, c.removeElement(elem))
	}
	c.mu.Unlock()
	c.notify(gone)
}

// CleanExpired removes all expired entries and returns how many went.
func (c *LRUCache[T]) CleanExpired() int {
	var gone []evicted[T]

	c.mu.Lock()
	now := c.now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			gone = append(gone, c.removeElement(elem))
		}
		elem = prev
	}
	c.mu.Unlock()

	c.notify(gone)
	return len(gone)
}

// Purge evicts everything.
func (c *LRUCache[T]) Purge() {
	var gone []evicted[T]
	c.mu.Lock()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		gone = append(gone, c.removeElement(elem))
		elem = prev
	}
	c.mu.Unlock()
	c.notify(gone)
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) evicted[T] {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
	return evicted[T]{key: item.key, data: item.data}
}

func (c *LRUCache[T]) notify(gone []evicted[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range gone {
		c.onEvict(e.key, e.data)
	}
}
