package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter is a fixed-window counter keyed by an arbitrary string (client IP
// for HTTP requests).
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int           // tokens per window
	per     time.Duration // window size
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining tokens
}

// New creates a limiter allowing max events per key per window.
// max <= 0 disables limiting.
func New(max int, per time.Duration) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per, now: time.Now}
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b := l.buckets[key]
	if b == nil || now.Sub(b.ts) > l.per {
		b = &bucket{ts: now, tokens: l.max}
		l.buckets[key] = b
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops expired windows at most once per window so idle keys don't pile up.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.per {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.per {
			delete(l.buckets, k)
		}
	}
	l.swept = now
}

// Middleware enforces the rate limit per client IP before calling next.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !l.Allow(clientIP(req)) {
			w.Header().Set("Retry-After", retryAfter(l.per))
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func retryAfter(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
