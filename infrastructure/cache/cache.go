// Package cache is a small in-process TTL cache used to memoize per-tenant
// cluster observations (node thread counts, health colors) between
// scheduler firings.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value   interface{}
	expires time.Time
}

// Cache maps string keys to values with a per-entry TTL. Expired entries
// are dropped lazily on read and swept whenever Set grows the map past
// sweepThreshold.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

const sweepThreshold = 1024

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the live value stored under key, if any.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// GetInt is Get narrowed to int values; a value of another type is a miss.
func (c *Cache) GetInt(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = entry{value: value, expires: now.Add(ttl)}
	if len(c.entries) > sweepThreshold {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.mu.Unlock()
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Flush empties the cache.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports how many entries are stored, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
