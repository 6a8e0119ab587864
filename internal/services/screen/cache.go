// Package screen implements the staged screening pipeline
package screen

import (
	"sync"
	"time"

	"github.com/bobmcallan/sift/internal/models"
)

// ResultCache is a versioned, TTL-bounded, size-bounded in-memory cache of
// completed scan results, keyed by scan parameter key. A hit requires both
// a live TTL and a matching schema version; a version mismatch is an
// unconditional miss regardless of age. Nothing is persisted; a restart
// starts cold.
type ResultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]*cacheEntry
	now      func() time.Time // injectable clock for testing
}

type cacheEntry struct {
	result   *models.ScanResult
	storedAt time.Time
}

// NewResultCache creates a cache with the given TTL and entry capacity.
func NewResultCache(ttl time.Duration, capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 5
	}
	return &ResultCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*cacheEntry),
		now:      time.Now,
	}
}

// Get returns the cached result for key, or false on expiry, schema-version
// mismatch, or absence. Dead entries are removed on the way out.
func (c *ResultCache) Get(key string) (*models.ScanResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	if entry.result.SchemaVersion != models.ScanSchemaVersion {
		delete(c.entries, key)
		return nil, false
	}
	return entry.result, true
}

// Put stores a result under key, evicting the oldest entry when the cache
// would exceed capacity.
func (c *ResultCache) Put(key string, result *models.ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = &cacheEntry{result: result, storedAt: c.now()}
}

// Len returns the number of live entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
