package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"MiniChat/internal/session"
)

// CachedResponse represents a cached model reply
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from the system prompt and the
// role and text of every turn. Timestamps are ignored.
func GenerateCacheKey(systemPrompt string, turns []session.Turn) string {
	h := sha256.New()
	h.Write([]byte(session.RoleSystem))
	h.Write([]byte(systemPrompt))
	for _, turn := range turns {
		h.Write([]byte{0})
		h.Write([]byte(turn.Role))
		h.Write([]byte{0})
		h.Write([]byte(turn.Text))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Cache holds replies keyed by GenerateCacheKey. A zero TTL keeps entries
// forever.
type Cache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

// New creates an empty cache
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached reply for key if present and not expired
func (c *Cache) Get(key string) (string, bool) {
	val, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	cached := val.(CachedResponse)
	if c.ttl > 0 && c.now().Sub(cached.Timestamp) > c.ttl {
		c.entries.Delete(key)
		return "", false
	}
	return cached.Response, true
}

// Put stores a reply
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: c.now(),
	})
}
