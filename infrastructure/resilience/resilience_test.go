package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, attempts)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	attempts := 0
	fatal := errors.New("not found")
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(fatal)
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond}, func() error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []State
	cb := New(Config{
		MaxFailures: 2,
		Timeout:     time.Minute,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, to)
		},
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func() error { return boom }), boom)
	}
	assert.Equal(t, StateOpen, cb.State())
	require.NotEmpty(t, transitions)
	assert.Equal(t, StateOpen, transitions[len(transitions)-1])

	// Calls fail fast while open, without invoking fn.
	invoked := false
	err := cb.Execute(context.Background(), func() error { invoked = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New(Config{MaxFailures: 2})
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
