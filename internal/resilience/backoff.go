package resilience

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes jittered exponential delays. For attempt n the delay is
// min(base * multiplier^n, cap) scaled by a uniform draw from [0.1, 1.0].
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	Multiplier float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a backoff strategy. Zero values fall back to
// 1s base, 60s cap, multiplier 2.
func NewBackoff(base, cap time.Duration, multiplier float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 60 * time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	return &Backoff{
		Base:       base,
		Cap:        cap,
		Multiplier: multiplier,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the sleep duration for the given zero-based attempt index.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	raw := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if raw > float64(b.Cap) {
		raw = float64(b.Cap)
	}

	b.mu.Lock()
	jitter := 0.1 + 0.9*b.rng.Float64()
	b.mu.Unlock()

	return time.Duration(raw * jitter)
}
