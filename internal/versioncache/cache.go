package versioncache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	version   int
	expiresAt time.Time
}

// Cache is a short-TTL map from user id to last-known token version. It
// saves a store round trip on every authenticated request; entries expire
// lazily at lookup, there is no background reaper.
type Cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]entry

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func New() *Cache {
	return &Cache{entries: make(map[uuid.UUID]entry)}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) TryGet(userID uuid.UUID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok {
		return 0, false
	}
	if !e.expiresAt.After(c.now()) {
		delete(c.entries, userID)
		return 0, false
	}
	return e.version, true
}

func (c *Cache) Set(userID uuid.UUID, version int, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry{version: version, expiresAt: c.now().Add(ttl)}
}

// Invalidate must run synchronously after a token-version bump so the next
// request observes the new version before the TTL would have expired.
func (c *Cache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}
