// Package ratelimit provides the receiver's per-customer API rate limiter,
// grounded on the ambient stack's token-bucket-per-key middleware pattern.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-key token-bucket rate limiter with periodic cleanup,
// used to shed load on the ingest and query APIs independent of the daily
// trace quota (which is tracked separately in internal/quota).
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New builds a Limiter allowing requestsPerSecond sustained, bursting up to
// burst.
func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow reports whether a request keyed by key may proceed.
func (l *Limiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

// Cleanup drops the whole limiter set once it grows unreasonably large,
// mirroring the ambient stack's simple periodic-reset cleanup strategy.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) > 10000 {
		l.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup on interval until the returned stop func is
// called.
func (l *Limiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// Count reports how many distinct keys currently have a limiter, mostly
// useful for tests and health reporting.
func (l *Limiter) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// KeyFromRequest extracts the rate-limit key: the resolved customer ID when
// present, otherwise the caller's remote address.
func KeyFromRequest(r *http.Request, customerID string) string {
	if customerID != "" {
		return customerID
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
