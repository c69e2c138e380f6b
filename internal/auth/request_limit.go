package auth

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultRequestLimiterMaxKeys = 5000

type requestBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RequestLimiter is a per-client token bucket for endpoints that spend a
// bcrypt hash on every call, such as registration.
type RequestLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	maxKeys int
	buckets map[string]*requestBucket
	now     func() time.Time
}

func NewRequestLimiter(perMinute, burst int, idleTTL time.Duration) *RequestLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}

	return &RequestLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idleTTL: idleTTL,
		maxKeys: defaultRequestLimiterMaxKeys,
		buckets: make(map[string]*requestBucket),
		now:     time.Now,
	}
}

func (l *RequestLimiter) Allow(clientID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientID]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.sweepLocked(now)
		}
		b = &requestBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[clientID] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the idle TTL.
func (l *RequestLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sweepLocked(now)
}

func (l *RequestLimiter) sweepLocked(now time.Time) int {
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Middleware answers 429 once clientID has used up its bucket.
func (l *RequestLimiter) Middleware(clientID func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(l.limit))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientID(r)) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
