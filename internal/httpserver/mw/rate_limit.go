package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/utils"
)

// RateLimitConfig bounds how often one client may call a route.
type RateLimitConfig struct {
	Burst      int
	PerMinute  int
	IdleTTL    time.Duration
	TrustProxy bool
	Now        func() time.Time // for testing, defaults to time.Now
}

type bucket struct {
	tokens float64
	last   time.Time
}

// limiter is a per-client token bucket.
type limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens per second
	capacity  float64
	idleTTL   time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig, now time.Time) *limiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.PerMinute < 1 {
		cfg.PerMinute = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	return &limiter{
		rate:      float64(cfg.PerMinute) / 60.0,
		capacity:  float64(cfg.Burst),
		idleTTL:   cfg.IdleTTL,
		buckets:   make(map[string]*bucket),
		lastSweep: now,
	}
}

// take consumes one token for key. When none is left it returns the wait
// until the next one.
func (l *limiter) take(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.last) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration(math.Ceil((1-b.tokens)/l.rate)) * time.Second
	return false, max(wait, time.Second)
}

// RateLimit rejects clients that exceed cfg with 429 and a Retry-After header.
func RateLimit(cfg RateLimitConfig, log logger.Logger) func(http.Handler) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := newLimiter(cfg, now())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, cfg.TrustProxy)
			ok, wait := l.take(ip, now())
			if !ok {
				log.Debug("request rate limited",
					logger.String("client_ip", ip),
					logger.Duration("retry_after", wait))
				w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
