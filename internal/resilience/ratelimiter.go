// Package resilience wraps provider calls with rate limiting and jittered
// exponential backoff. The rate limiter is the only state shared across
// workers; every mutation happens under one mutex with arithmetic-only
// critical sections.
package resilience

import (
	"sync"
	"time"
)

const window = time.Minute

// LimiterConfig configures the rate limiter.
type LimiterConfig struct {
	RequestsPerMinute int
	BurstLimit        int
}

// DefaultLimiterConfig returns the defaults used for provider calls.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		RequestsPerMinute: 50,
		BurstLimit:        10,
	}
}

// RateLimiter combines a sliding window over the last 60 seconds with a
// token bucket. Tokens replenish one per 60/burst seconds.
type RateLimiter struct {
	mu         sync.Mutex
	cfg        LimiterConfig
	timestamps []time.Time
	tokens     int
	lastRefill time.Time
	total      int64

	now func() time.Time // injectable clock
}

// NewRateLimiter creates a limiter with a full token bucket.
func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute < 1 {
		cfg.RequestsPerMinute = 1
	}
	if cfg.BurstLimit < 1 {
		cfg.BurstLimit = 1
	}
	l := &RateLimiter{
		cfg: cfg,
		now: time.Now,
	}
	l.tokens = cfg.BurstLimit
	l.lastRefill = l.now()
	return l
}

// Acquire reports whether one more request is allowed right now. A denial
// is a transient condition; callers retry through the backoff strategy.
func (l *RateLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)
	l.trim(now)

	if len(l.timestamps) >= l.cfg.RequestsPerMinute {
		return false
	}
	if l.tokens == 0 {
		return false
	}

	l.timestamps = append(l.timestamps, now)
	l.tokens--
	l.total++
	return true
}

// refill restores one token per 60/burst seconds, clamped to the burst limit.
func (l *RateLimiter) refill(now time.Time) {
	interval := window / time.Duration(l.cfg.BurstLimit)
	for !l.lastRefill.Add(interval).After(now) {
		l.lastRefill = l.lastRefill.Add(interval)
		if l.tokens < l.cfg.BurstLimit {
			l.tokens++
		}
	}
}

// trim drops timestamps older than the sliding window.
func (l *RateLimiter) trim(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	RequestsLastMinute int   `json:"requests_last_minute"`
	RequestsPerMinute  int   `json:"requests_per_minute"`
	TokensRemaining    int   `json:"tokens_remaining"`
	BurstLimit         int   `json:"burst_limit"`
	TotalObserved      int64 `json:"total_observed"`
}

// Stats returns a snapshot of the limiter.
func (l *RateLimiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.refill(now)
	l.trim(now)

	return Stats{
		RequestsLastMinute: len(l.timestamps),
		RequestsPerMinute:  l.cfg.RequestsPerMinute,
		TokensRemaining:    l.tokens,
		BurstLimit:         l.cfg.BurstLimit,
		TotalObserved:      l.total,
	}
}
