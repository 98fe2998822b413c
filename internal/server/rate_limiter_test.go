package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiter_Burst(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{Burst: 3, RefillInterval: time.Second}, clock.Now)

	for i := 0; i < 3; i++ {
		require.True(t, rl.allow(), "token %d", i)
	}
	require.False(t, rl.allow())
}

func TestRateLimiter_Refill(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{Burst: 2, RefillInterval: time.Second}, clock.Now)

	require.True(t, rl.allow())
	require.True(t, rl.allow())
	require.False(t, rl.allow())

	clock.advance(500 * time.Millisecond)
	require.True(t, rl.allow())
	require.False(t, rl.allow())

	// refill is capped at the burst size
	clock.advance(time.Hour)
	require.True(t, rl.allow())
	require.True(t, rl.allow())
	require.False(t, rl.allow())
}

func TestRateLimiter_InvalidConfig(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{}, clock.Now)

	require.True(t, rl.allow())
	require.False(t, rl.allow())

	clock.advance(time.Second)
	require.True(t, rl.allow())
}
