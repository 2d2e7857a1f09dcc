package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	l := NewLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("alice"))
	}
	assert.ErrorIs(t, l.Allow("alice"), ErrRateLimited)
}

func TestLimiterIsPerUser(t *testing.T) {
	l := NewLimiter(1, time.Minute)

	require.NoError(t, l.Allow("alice"))
	assert.ErrorIs(t, l.Allow("alice"), ErrRateLimited)

	// Bob's budget is untouched by Alice's.
	require.NoError(t, l.Allow("bob"))
}

func TestLimiterWindowSlides(t *testing.T) {
	l := NewLimiter(2, time.Minute)

	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow("alice"))
	require.NoError(t, l.Allow("alice"))
	assert.ErrorIs(t, l.Allow("alice"), ErrRateLimited)

	// After the window passes, old events expire.
	now = now.Add(61 * time.Second)
	require.NoError(t, l.Allow("alice"))
}

func TestLimiterDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.Equal(t, 30, l.max)
	assert.Equal(t, time.Minute, l.window)
}
