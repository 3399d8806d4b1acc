package cache

import (
	"container/list"
	"sync"

	"github.com/c360/cubestream/errors"
)

type lruEntry[V any] struct {
	key   string
	value V
}

// lruCache keeps entries in a doubly-linked list ordered by recency.
// The list back is the eviction candidate.
type lruCache[V any] struct {
	mu      sync.RWMutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
}

func newLRUCache[V any](maxSize int, opts *cacheOptions[V]) (*lruCache[V], error) {
	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "newLRUCache", "metrics registration")
		}
	}

	return &lruCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		metrics: metrics,
		evictFn: opts.evictCallback,
	}, nil
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.order.MoveToFront(element)

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return element.Value.(*lruEntry[V]).value, true
}

func (c *lruCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.items[key]; exists {
		element.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(element)
		c.stats.Set()
		if c.metrics != nil {
			c.metrics.recordSet()
		}
		return false, nil
	}

	element := c.order.PushFront(&lruEntry[V]{key: key, value: value})
	c.items[key] = element

	if len(c.items) > c.maxSize {
		c.evictOldest()
	}

	c.stats.Set()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(len(c.items))
	}
	return true, nil
}

func (c *lruCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var evictKey string
	var evictValue V
	var notify bool

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false, nil
	}

	if c.evictFn != nil {
		entry := element.Value.(*lruEntry[V])
		evictKey, evictValue, notify = entry.key, entry.value, true
	}

	c.removeElement(element)
	c.stats.Delete()
	c.stats.UpdateSize(int64(len(c.items)))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(len(c.items))
	}
	c.mu.Unlock()

	// Callback runs outside the lock so it may touch the cache.
	if notify {
		c.evictFn(evictKey, evictValue)
	}
	return true, nil
}

func (c *lruCache[V]) Clear() error {
	var evicted []lruEntry[V]

	c.mu.Lock()
	if c.evictFn != nil {
		evicted = make([]lruEntry[V], 0, len(c.items))
		for element := c.order.Back(); element != nil; element = element.Prev() {
			evicted = append(evicted, *element.Value.(*lruEntry[V]))
		}
	}

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	c.mu.Unlock()

	for _, entry := range evicted {
		c.evictFn(entry.key, entry.value)
	}
	return nil
}

func (c *lruCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *lruCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		keys = append(keys, element.Value.(*lruEntry[V]).key)
	}
	return keys
}

func (c *lruCache[V]) Stats() *Statistics {
	return c.stats
}

// Close is a no-op; the LRU cache runs no background goroutines.
func (c *lruCache[V]) Close() error {
	return nil
}

// evictOldest removes the list back. Must be called with mu held.
func (c *lruCache[V]) evictOldest() {
	element := c.order.Back()
	if element == nil {
		return
	}

	var evictKey string
	var evictValue V
	var notify bool
	if c.evictFn != nil {
		entry := element.Value.(*lruEntry[V])
		evictKey, evictValue, notify = entry.key, entry.value, true
	}

	c.removeElement(element)
	c.stats.Eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}

	if notify {
		c.mu.Unlock()
		c.evictFn(evictKey, evictValue)
		c.mu.Lock()
	}
}

// removeElement drops an element from both the list and the map. Must
// be called with mu held; does not fire the eviction callback.
func (c *lruCache[V]) removeElement(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}
