package auth

import (
	"sync"
	"time"
)

const (
	DefaultLoginWindow      = 300 * time.Second
	DefaultLoginMaxAttempts = 10
	defaultThrottleMaxKeys  = 5000
)

// LoginThrottle counts failed logins per client identifier over a sliding
// window. State is process-local. One mutex guards the whole map, which is
// the contention point if request rates grow far beyond a single node.
type LoginThrottle struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	failures    map[string][]time.Time
	maxKeys     int
	now         func() time.Time
}

func NewLoginThrottle(maxAttempts int, window time.Duration, maxKeys int) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = DefaultLoginMaxAttempts
	}
	if window <= 0 {
		window = DefaultLoginWindow
	}
	if maxKeys <= 0 {
		maxKeys = defaultThrottleMaxKeys
	}

	return &LoginThrottle{
		maxAttempts: maxAttempts,
		window:      window,
		failures:    make(map[string][]time.Time),
		maxKeys:     maxKeys,
		now:         time.Now,
	}
}

func (t *LoginThrottle) IsLimited(clientID string) bool {
	limited, _ := t.Check(clientID)
	return limited
}

// Check reports whether clientID is limited and, if so, how long until the
// oldest retained failure leaves the window.
func (t *LoginThrottle) Check(clientID string) (bool, time.Duration) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	hits := t.pruneLocked(clientID, now)
	if len(hits) < t.maxAttempts {
		return false, 0
	}

	retryAfter := hits[0].Add(t.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return true, retryAfter
}

func (t *LoginThrottle) RecordFailure(clientID string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	hits := t.pruneLocked(clientID, now)
	t.failures[clientID] = append(hits, now)

	if len(t.failures) > t.maxKeys {
		t.sweepLocked(now)
	}
}

func (t *LoginThrottle) Reset(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, clientID)
}

// Sweep drops every identifier whose window has fully drained and returns
// how many were removed.
func (t *LoginThrottle) Sweep() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sweepLocked(now)
}

func (t *LoginThrottle) pruneLocked(clientID string, now time.Time) []time.Time {
	hits, ok := t.failures[clientID]
	if !ok {
		return nil
	}

	threshold := now.Add(-t.window)
	drop := 0
	for drop < len(hits) && !hits[drop].After(threshold) {
		drop++
	}
	hits = hits[drop:]

	if len(hits) == 0 {
		delete(t.failures, clientID)
		return nil
	}
	t.failures[clientID] = hits
	return hits
}

func (t *LoginThrottle) sweepLocked(now time.Time) int {
	threshold := now.Add(-t.window)
	removed := 0
	for key, hits := range t.failures {
		if len(hits) == 0 || !hits[len(hits)-1].After(threshold) {
			delete(t.failures, key)
			removed++
		}
	}
	return removed
}
