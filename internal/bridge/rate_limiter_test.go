package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMintRateLimiter(t *testing.T) {
	rl := newMintRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("kiosk-1"), "attempt %d", i)
	}
	assert.False(t, rl.Allow("kiosk-1"))

	// Independent windows per client.
	assert.True(t, rl.Allow("kiosk-2"))
}

func TestMintRateLimiterWindowExpires(t *testing.T) {
	rl := newMintRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("kiosk-1"))
	assert.False(t, rl.Allow("kiosk-1"))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("kiosk-1"))
}
