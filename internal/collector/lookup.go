package collector

import "sync"

// DefaultLookupSize bounds the shared lookup cache.
const DefaultLookupSize = 1024

// LookupCache is a bounded name->value cache shared by collectors for
// cross-call resolution (user ids to names and the like). When full, the
// oldest entry is evicted. Safe for concurrent use.
type LookupCache struct {
	mu    sync.Mutex
	max   int
	items map[string]string
	order []string
}

// NewLookupCache returns a cache holding at most max entries.
func NewLookupCache(max int) *LookupCache {
	if max <= 0 {
		max = DefaultLookupSize
	}
	return &LookupCache{max: max, items: make(map[string]string, max)}
}

// Get returns the cached value for key.
func (c *LookupCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

// Put stores value under key, evicting the oldest entry when full.
func (c *LookupCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		c.items[key] = value
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	c.items[key] = value
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
