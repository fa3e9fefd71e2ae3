package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nvaidyanathan/panchangam-today/internal/models"
)

// Cache defines the interface for panchangam snapshot caching implementations.
// Get returns a cached snapshot if present and not expired, Set stores one
// with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (*models.PanchangamSnapshot, bool, error)
	Set(ctx context.Context, key string, value *models.PanchangamSnapshot, ttl time.Duration) error
}

// Key builds the cache key for a (date, location) pair. Coordinates are
// rounded to four decimals (~11m) so jittery device fixes share an entry.
func Key(date string, coords models.Coordinates) string {
	return fmt.Sprintf("%s|%.4f|%.4f", date, coords.Latitude, coords.Longitude)
}

// InMemoryCache implements Cache using an in-memory map with TTL-based
// expiration. Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     *models.PanchangamSnapshot
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves a cached snapshot for the key if present and not expired.
// Returns (snapshot, true, nil) on hit, (nil, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (*models.PanchangamSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores a snapshot with the specified TTL duration.
func (c *InMemoryCache) Set(ctx context.Context, key string, value *models.PanchangamSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
