package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("threads", 300, time.Minute)
	v, ok := c.Get("threads")
	assert.True(t, ok)
	assert.Equal(t, 300, v)

	n, ok := c.GetInt("threads")
	assert.True(t, ok)
	assert.Equal(t, 300, n)
}

func TestExpiry(t *testing.T) {
	c := New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.Set("health", "green", 5*time.Minute)

	clock = clock.Add(4 * time.Minute)
	_, ok := c.Get("health")
	assert.True(t, ok)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.Get("health")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGetIntTypeMismatch(t *testing.T) {
	c := New()
	c.Set("k", "not an int", time.Minute)
	_, ok := c.GetInt("k")
	assert.False(t, ok)
}

func TestDeleteAndFlush(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Flush()
	assert.Equal(t, 0, c.Len())
}
