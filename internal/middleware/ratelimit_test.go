package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("1.2.3.4"))
	require.True(t, rl.Allow("1.2.3.4"))
	require.True(t, rl.Allow("1.2.3.4"))
	require.False(t, rl.Allow("1.2.3.4"))

	// Other clients keep their own budget.
	require.True(t, rl.Allow("5.6.7.8"))

	// A new window resets the count.
	now = now.Add(time.Minute)
	require.True(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiterNilPassesThrough(t *testing.T) {
	var rl *RateLimiter
	handler := rl.Handler()
	require.NotNil(t, handler)
}

func TestRateLimiterCleansExpiredWindows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))

	now = now.Add(2 * time.Minute)
	require.True(t, rl.Allow("c"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.NotContains(t, rl.clients, "a")
	require.NotContains(t, rl.clients, "b")
}
