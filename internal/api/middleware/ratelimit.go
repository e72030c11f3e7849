package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides keyed token-bucket rate limiting. Idle buckets are
// dropped lazily on access.
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a rate limiter with the given requests per second and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow checks if a request from the given key should be allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastSweep = now
	}
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ByIP uses X-Real-IP if set (from chi's RealIP middleware), otherwise RemoteAddr.
func ByIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// ByDID charges authenticated requests to the caller, falling back to the IP.
func ByDID(r *http.Request) string {
	if did := DIDFromContext(r.Context()); did != "" {
		return "did:" + did
	}
	return ByIP(r)
}

// RateLimit returns middleware that limits requests per key.
func RateLimit(rps float64, burst int, key KeyFunc) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(key(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
