// Package cache is the short-lived in-process tier. It holds rendered XML
// strings keyed by "locationIdentifier_dataType" and sits between the
// persistent store and the upstream fetch on the read path.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache defines the short-lived tier. Get returns the XML if present and not
// expired, Set stores it with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, xml string, ttl time.Duration) error
}

// Key builds the legacy in-process cache key. The tier has no appType
// dimension; the key is the raw location identifier plus the data type.
func Key(locationIdentifier, dataType string) string {
	return locationIdentifier + "_" + dataType
}

// MemoryCache implements Cache with a map and a fixed-interval janitor sweep.
// It is an owned object with an explicit lifecycle: construct at startup,
// Stop on shutdown.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	stop chan struct{}
	once sync.Once
}

type memoryEntry struct {
	xml       string
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache and starts its sweep janitor.
// sweepInterval <= 0 disables the sweep; expired entries are then only
// filtered on access.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]memoryEntry),
		stop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.janitor(sweepInterval)
	}
	return c
}

// Get retrieves the cached XML for the key if present and not expired.
// Expired entries are left for the janitor; readers filter on expiry.
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.xml, true, nil
}

// Set stores the XML with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, xml string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memoryEntry{xml: xml, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stop terminates the janitor. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}
