// Package dedup provides the short-lived alert-deduplication cache
// described in §5: "last-minute in-memory map guarded by a single
// short-lived mutex; falls back to a store lookup on cache miss." When
// REDIS_URL is configured the cache is backed by Redis instead, so multiple
// core processes share one dedup view.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Cache records which (customer, service, endpoint, alert_type) scopes have
// an open alert within the current minute bucket, mapping the scope to the
// existing alert's ID.
type Cache interface {
	// Get returns the alert ID recorded for scope, if any, within window.
	Get(ctx context.Context, scope string) (alertID string, found bool, err error)
	// Set records that scope maps to alertID, expiring after window.
	Set(ctx context.Context, scope string, alertID string, window time.Duration) error
}

// MemoryCache is the in-process fallback cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	alertID string
	expires time.Time
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

func (c *MemoryCache) Get(ctx context.Context, scope string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expires) {
		delete(c.entries, scope)
		return "", false, nil
	}
	return e.alertID, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, scope string, alertID string, window time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = entry{alertID: alertID, expires: time.Now().Add(window)}
	return nil
}

// Scope builds the dedup key described in §4.4: (customer_id, service_name,
// endpoint, alert_type).
func Scope(customerID, service, endpoint, alertType string) string {
	return customerID + "\x00" + service + "\x00" + endpoint + "\x00" + alertType
}
