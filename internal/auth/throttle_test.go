package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedThrottle(clock *fakeClock) *LoginThrottle {
	throttle := NewLoginThrottle(DefaultLoginMaxAttempts, DefaultLoginWindow, 0)
	throttle.now = clock.Now
	return throttle
}

func TestLoginThrottleLimitsAfterMaxFailures(t *testing.T) {
	throttle := newClockedThrottle(newFakeClock())

	for i := 0; i < DefaultLoginMaxAttempts-1; i++ {
		throttle.RecordFailure("10.0.0.1")
	}
	assert.False(t, throttle.IsLimited("10.0.0.1"))

	throttle.RecordFailure("10.0.0.1")
	assert.True(t, throttle.IsLimited("10.0.0.1"))
	assert.False(t, throttle.IsLimited("10.0.0.2"))
}

func TestLoginThrottleWindowSlides(t *testing.T) {
	clock := newFakeClock()
	throttle := newClockedThrottle(clock)

	throttle.RecordFailure("c")
	clock.Advance(100 * time.Second)
	for i := 0; i < DefaultLoginMaxAttempts-1; i++ {
		throttle.RecordFailure("c")
	}

	limited, retryAfter := throttle.Check("c")
	require.True(t, limited)
	assert.Equal(t, 200*time.Second, retryAfter)

	// The first failure leaves the window; nine remain.
	clock.Advance(200 * time.Second)
	assert.False(t, throttle.IsLimited("c"))

	clock.Advance(DefaultLoginWindow)
	assert.False(t, throttle.IsLimited("c"))
	assert.Empty(t, throttle.failures)
}

func TestLoginThrottleReset(t *testing.T) {
	throttle := newClockedThrottle(newFakeClock())

	for i := 0; i < DefaultLoginMaxAttempts; i++ {
		throttle.RecordFailure("c")
	}
	require.True(t, throttle.IsLimited("c"))

	throttle.Reset("c")
	assert.False(t, throttle.IsLimited("c"))
}

func TestLoginThrottleConcurrentFailures(t *testing.T) {
	throttle := NewLoginThrottle(DefaultLoginMaxAttempts, time.Minute, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			throttle.RecordFailure("shared")
			throttle.IsLimited("shared")
		}()
	}
	wg.Wait()

	throttle.mu.Lock()
	defer throttle.mu.Unlock()
	assert.Len(t, throttle.failures["shared"], 50)
}

func TestLoginThrottleSweep(t *testing.T) {
	clock := newFakeClock()
	throttle := newClockedThrottle(clock)

	throttle.RecordFailure("old")
	clock.Advance(DefaultLoginWindow)
	throttle.RecordFailure("fresh")

	assert.Equal(t, 1, throttle.Sweep())
	assert.Contains(t, throttle.failures, "fresh")
	assert.NotContains(t, throttle.failures, "old")
}

func TestLoginThrottleBoundsKeys(t *testing.T) {
	clock := newFakeClock()
	throttle := NewLoginThrottle(DefaultLoginMaxAttempts, DefaultLoginWindow, 3)
	throttle.now = clock.Now

	for i := 0; i < 3; i++ {
		throttle.RecordFailure(fmt.Sprintf("client-%d", i))
	}
	clock.Advance(DefaultLoginWindow + time.Second)
	throttle.RecordFailure("client-new")

	assert.Len(t, throttle.failures, 1)
}
