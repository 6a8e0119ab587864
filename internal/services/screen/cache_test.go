package screen

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/sift/internal/models"
)

func scanResult(version int) *models.ScanResult {
	return &models.ScanResult{
		GeneratedAt:   time.Now(),
		SchemaVersion: version,
	}
}

func TestResultCacheHitWithinTTL(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewResultCache(30*time.Minute, 5)
	cache.now = func() time.Time { return clock }

	cache.Put("decline|sp500|2025-03-01|25", scanResult(models.ScanSchemaVersion))

	clock = clock.Add(29 * time.Minute)
	got, ok := cache.Get("decline|sp500|2025-03-01|25")
	require.True(t, ok)
	assert.Equal(t, models.ScanSchemaVersion, got.SchemaVersion)
}

func TestResultCacheExpiry(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewResultCache(30*time.Minute, 5)
	cache.now = func() time.Time { return clock }

	cache.Put("key", scanResult(models.ScanSchemaVersion))

	clock = clock.Add(30 * time.Minute)
	_, ok := cache.Get("key")
	assert.False(t, ok, "entry at exactly TTL age should be expired")
	assert.Equal(t, 0, cache.Len(), "expired entry should be removed")
}

func TestResultCacheSchemaVersionMismatch(t *testing.T) {
	cache := NewResultCache(30*time.Minute, 5)

	cache.Put("key", scanResult(models.ScanSchemaVersion-1))

	_, ok := cache.Get("key")
	assert.False(t, ok, "stale schema version must miss regardless of age")
	assert.Equal(t, 0, cache.Len())
}

func TestResultCacheEvictsOldest(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewResultCache(time.Hour, 3)
	cache.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		cache.Put(fmt.Sprintf("key-%d", i), scanResult(models.ScanSchemaVersion))
		clock = clock.Add(time.Minute)
	}

	cache.Put("key-3", scanResult(models.ScanSchemaVersion))

	assert.Equal(t, 3, cache.Len())
	_, ok := cache.Get("key-0")
	assert.False(t, ok, "oldest entry should have been evicted")
	for i := 1; i <= 3; i++ {
		_, ok := cache.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}
}

func TestResultCacheOverwriteDoesNotEvict(t *testing.T) {
	clock := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cache := NewResultCache(time.Hour, 2)
	cache.now = func() time.Time { return clock }

	cache.Put("a", scanResult(models.ScanSchemaVersion))
	clock = clock.Add(time.Minute)
	cache.Put("b", scanResult(models.ScanSchemaVersion))
	clock = clock.Add(time.Minute)
	cache.Put("a", scanResult(models.ScanSchemaVersion))

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("b")
	assert.True(t, ok, "replacing an existing key must not evict another entry")
}
