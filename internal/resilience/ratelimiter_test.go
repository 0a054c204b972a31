package resilience

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances manually so window behavior is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg LimiterConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(cfg)
	l.now = clock.now
	l.lastRefill = clock.t
	return l, clock
}

func TestBurstLimitExhaustion(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{RequestsPerMinute: 100, BurstLimit: 3})

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire(), "bucket empty, no replenishment yet")
}

func TestTokenReplenishment(t *testing.T) {
	l, clock := newTestLimiter(LimiterConfig{RequestsPerMinute: 100, BurstLimit: 10})

	for i := 0; i < 10; i++ {
		require.True(t, l.Acquire())
	}
	require.False(t, l.Acquire())

	// One token per 6s for burst 10.
	clock.advance(6 * time.Second)
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())

	clock.advance(18 * time.Second)
	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire())
}

func TestSlidingWindowBound(t *testing.T) {
	l, clock := newTestLimiter(LimiterConfig{RequestsPerMinute: 5, BurstLimit: 5})

	for i := 0; i < 5; i++ {
		clock.advance(12 * time.Second) // refills keep the bucket topped up
		require.True(t, l.Acquire())
	}
	require.False(t, l.Acquire(), "window full at rpm")

	// The earliest timestamp slides out after 60s.
	clock.advance(49 * time.Second)
	assert.True(t, l.Acquire())
}

// Property: over any trailing 60s window the limiter never grants more than
// requests_per_minute acquisitions.
func TestWindowBoundProperty(t *testing.T) {
	const rpm = 20
	l, clock := newTestLimiter(LimiterConfig{RequestsPerMinute: rpm, BurstLimit: rpm})
	rng := rand.New(rand.NewSource(42))

	type grant struct{ at time.Time }
	var grants []grant

	for i := 0; i < 2000; i++ {
		clock.advance(time.Duration(rng.Intn(3000)) * time.Millisecond)
		if l.Acquire() {
			grants = append(grants, grant{at: clock.t})
		}
	}

	for i := range grants {
		count := 1
		for j := i + 1; j < len(grants); j++ {
			if grants[j].at.Sub(grants[i].at) < time.Minute {
				count++
			} else {
				break
			}
		}
		require.LessOrEqual(t, count, rpm, "window starting at grant %d exceeds rpm", i)
	}
}

func TestStatsSnapshot(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{RequestsPerMinute: 50, BurstLimit: 10})

	require.True(t, l.Acquire())
	require.True(t, l.Acquire())

	s := l.Stats()
	assert.Equal(t, 2, s.RequestsLastMinute)
	assert.Equal(t, 50, s.RequestsPerMinute)
	assert.Equal(t, 8, s.TokensRemaining)
	assert.Equal(t, 10, s.BurstLimit)
	assert.Equal(t, int64(2), s.TotalObserved)
}

func TestConcurrentAcquireDoesNotRace(t *testing.T) {
	l := NewRateLimiter(LimiterConfig{RequestsPerMinute: 1000, BurstLimit: 1000})

	done := make(chan int)
	for w := 0; w < 8; w++ {
		go func() {
			granted := 0
			for i := 0; i < 100; i++ {
				if l.Acquire() {
					granted++
				}
			}
			done <- granted
		}()
	}

	total := 0
	for w := 0; w < 8; w++ {
		total += <-done
	}
	assert.LessOrEqual(t, total, 1000)
	assert.Equal(t, int64(total), l.Stats().TotalObserved)
}
