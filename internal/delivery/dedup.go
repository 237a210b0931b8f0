package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/Johnpaul5084/ai-for-learning-bharat/internal/domain"
)

// IntentCache is a bounded-time idempotency cache keyed by intent key.
// It absorbs re-delivery of the same event from an at-least-once
// upstream: an intent already processed within the TTL is dropped.
type IntentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewIntentCache creates a new intent cache with the given horizon.
func NewIntentCache(ttl time.Duration) *IntentCache {
	return &IntentCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen marks the key as processed and reports whether it was already
// present within the cache horizon.
func (c *IntentCache) Seen(key domain.IntentKey) bool {
	k := key.String()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if expires, ok := c.entries[k]; ok && now.Before(expires) {
		return true
	}
	c.entries[k] = now.Add(c.ttl)
	return false
}

// Len returns the number of cached entries, expired included.
func (c *IntentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictExpired removes entries past their horizon.
func (c *IntentCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, expires := range c.entries {
		if !now.Before(expires) {
			delete(c.entries, k)
		}
	}
}

// RunEviction periodically evicts expired entries until ctx is done.
func (c *IntentCache) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
