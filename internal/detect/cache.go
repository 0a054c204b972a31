package detect

import (
	"container/list"
	"fmt"
	"sync"

	"stmtsep/internal/types"
)

// Cache is a process-wide LRU for final boundary sets, keyed by document
// fingerprint and page count. Misses are idempotent, so racing computations
// are acceptable; the mutex only guards the map and list.
type Cache struct {
	mu    sync.RWMutex
	size  int
	items map[string]*list.Element
	order *list.List // front = most recent
}

type cacheEntry struct {
	key string
	set types.BoundarySet
}

// NewCache creates an LRU cache. size < 1 disables storage.
func NewCache(size int) *Cache {
	return &Cache{
		size:  size,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

func cacheKey(fingerprint string, totalPages int) string {
	return fmt.Sprintf("%s:%d", fingerprint, totalPages)
}

// Get returns the cached boundary set for the document, if present.
func (c *Cache) Get(fingerprint string, totalPages int) (types.BoundarySet, bool) {
	key := cacheKey(fingerprint, totalPages)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return types.BoundarySet{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).set, true
}

// Put stores a boundary set, evicting the least recently used entry on
// overflow.
func (c *Cache) Put(fingerprint string, totalPages int, set types.BoundarySet) {
	if c.size < 1 {
		return
	}
	key := cacheKey(fingerprint, totalPages)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).set = set
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, set: set})
	c.items[key] = elem

	if c.order.Len() > c.size {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
