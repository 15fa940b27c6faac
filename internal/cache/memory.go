package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the fast first-level cache, bounded only by TTL
type MemoryCache struct {
	entries *gocache.Cache
}

// NewMemoryCache creates a memory cache with a default TTL and an interval
// for sweeping expired entries
func NewMemoryCache(defaultTTL, sweepInterval time.Duration) *MemoryCache {
	return &MemoryCache{entries: gocache.New(defaultTTL, sweepInterval)}
}

// Get returns the cached bytes for the key if present and unexpired
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set stores the value; a zero TTL uses the cache default
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.entries.Set(key, value, ttl)
	return nil
}

// Delete removes the key
func (c *MemoryCache) Delete(key string) error {
	c.entries.Delete(key)
	return nil
}

// Clear drops every entry
func (c *MemoryCache) Clear() error {
	c.entries.Flush()
	return nil
}
