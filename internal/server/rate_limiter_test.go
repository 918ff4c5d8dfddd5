package server

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenDenies(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(3, time.Second, clock)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "frame %d within burst should pass", i)
	}
	assert.False(t, rl.allow(), "frame beyond burst should be denied")
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(2, time.Second, clock)

	require.True(t, rl.allow())
	require.True(t, rl.allow())
	require.False(t, rl.allow())

	// At 2 tokens/second, half a second buys exactly one frame.
	clock.Advance(500 * time.Millisecond)
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	// A long idle period refills at most to capacity.
	clock.Advance(5 * time.Second)
	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())
}

func TestRateLimiterSanitizesParameters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(0, 0, clock)

	// Coerced to one token per second.
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	clock.Advance(time.Second)
	assert.True(t, rl.allow())
}
