package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"MiniChat/internal/session"
)

func TestGenerateCacheKeyIgnoresTimestamps(t *testing.T) {
	a := []session.Turn{{Role: session.RoleUser, Text: "hi", Timestamp: time.Unix(1, 0)}}
	b := []session.Turn{{Role: session.RoleUser, Text: "hi", Timestamp: time.Unix(2, 0)}}

	assert.Equal(t, GenerateCacheKey("sys", a), GenerateCacheKey("sys", b))
}

func TestGenerateCacheKeyDistinguishesContent(t *testing.T) {
	user := []session.Turn{{Role: session.RoleUser, Text: "hi"}}
	assistant := []session.Turn{{Role: session.RoleAssistant, Text: "hi"}}
	split := []session.Turn{
		{Role: session.RoleUser, Text: "h"},
		{Role: session.RoleUser, Text: "i"},
	}

	assert.NotEqual(t, GenerateCacheKey("sys", user), GenerateCacheKey("sys", assistant))
	assert.NotEqual(t, GenerateCacheKey("sys", user), GenerateCacheKey("other", user))
	assert.NotEqual(t, GenerateCacheKey("sys", user), GenerateCacheKey("sys", split))
}

func TestCacheGetPut(t *testing.T) {
	c := New(0)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", "reply")
	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "reply", got)
}

func TestCacheExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", "reply")
	now = now.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
}
