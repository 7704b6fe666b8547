package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinBurst(t *testing.T) {
	rl := New(Config{RequestsPerSecond: 1, Burst: 2})

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestWaitHonorsContext(t *testing.T) {
	rl := New(Config{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, rl.Wait(context.Background())) // burst slot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	rl := New(Config{})
	assert.True(t, rl.AllowN(time.Now(), int(DefaultConfig().RequestsPerSecond)))
}
