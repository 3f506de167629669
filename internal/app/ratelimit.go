package app

import (
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter per client IP and route name.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{buckets: map[string]*rateBucket{}, now: time.Now}
}

func (l *rateLimiter) allow(ip, key string, max int, window time.Duration) bool {
	now := l.now()
	rk := ip + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{resetAt: now.Add(window)}
		l.buckets[rk] = b
		l.sweep(now)
	}
	if b.count >= max {
		return false
	}
	b.count++
	return true
}

// sweep drops expired buckets so idle clients do not accumulate.
func (l *rateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}

func (l *rateLimiter) wrap(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r), name, max, window) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later", nil)
			return
		}
		next(w, r)
	}
}
