package node

import "sync"

// cache is a node's local read-through/write-through cache (spec.md §4.3).
// One mutex covers the whole map; critical sections are O(1), so foreground
// calls never contend for long with the background drain loop.
type cache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newCache() *cache {
	return &cache{data: make(map[string][]byte)}
}

func (c *cache) get(key []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[string(key)]
	return v, ok
}

func (c *cache) has(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[string(key)]
	return ok
}

func (c *cache) put(key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[string(key)] = append([]byte(nil), value...)
}

func (c *cache) evict(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)
	_, ok := c.data[k]
	if ok {
		delete(c.data, k)
	}
	return ok
}
