package ingest

import (
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// MappingCache caches field mappings per organization. Mappings never change
// once stored, so entries expire only to bound memory, not for freshness.
// Absence is never cached: a miss must go to storage so first ingests see
// the truth.
type MappingCache struct {
	cache   map[string]*cacheEntry
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration
	hits    int64
	misses  int64
}

type cacheEntry struct {
	mapping   *models.FieldMapping
	expiresAt time.Time
}

// MappingCacheConfig configures the mapping cache
type MappingCacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// DefaultMappingCacheConfig returns sensible defaults
func DefaultMappingCacheConfig() MappingCacheConfig {
	return MappingCacheConfig{
		MaxSize: 10000,
		TTL:     15 * time.Minute,
	}
}

// NewMappingCache creates a new mapping cache
func NewMappingCache(config MappingCacheConfig) *MappingCache {
	return &MappingCache{
		cache:   make(map[string]*cacheEntry),
		maxSize: config.MaxSize,
		ttl:     config.TTL,
	}
}

// Get returns the cached mapping for an organization, or nil on a miss.
func (c *MappingCache) Get(apiClientID string) *models.FieldMapping {
	c.mu.RLock()
	entry, exists := c.cache[apiClientID]
	c.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.mapping
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil
}

// Put stores a mapping.
func (c *MappingCache) Put(apiClientID string, mapping *models.FieldMapping) {
	if mapping == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict if at capacity (simple LRU - just clear half)
	if len(c.cache) >= c.maxSize {
		c.evictHalf()
	}

	c.cache[apiClientID] = &cacheEntry{
		mapping:   mapping,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evictHalf removes half the cache entries (must be called with lock held)
func (c *MappingCache) evictHalf() {
	count := 0
	target := len(c.cache) / 2
	for key := range c.cache {
		delete(c.cache, key)
		count++
		if count >= target {
			break
		}
	}
}

// Invalidate removes an organization's mapping from the cache
func (c *MappingCache) Invalidate(apiClientID string) {
	c.mu.Lock()
	delete(c.cache, apiClientID)
	c.mu.Unlock()
}

// Clear removes all entries from the cache
func (c *MappingCache) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// CacheStats returns cache statistics
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *MappingCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Size:   len(c.cache),
		Hits:   c.hits,
		Misses: c.misses,
	}
}
