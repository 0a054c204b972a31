package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stmtsep/internal/types"
)

func newTestExecutor(maxAttempts int) (*Executor, *[]time.Duration) {
	limiter := NewRateLimiter(LimiterConfig{RequestsPerMinute: 1000, BurstLimit: 1000})
	e := NewExecutor(limiter, NewBackoff(10*time.Millisecond, time.Second, 2), maxAttempts)

	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestExecutorSuccessFirstTry(t *testing.T) {
	e, slept := newTestExecutor(3)

	calls := 0
	err := e.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

// Rate-limited twice then success: three invocations total with two backoff
// sleeps in between.
func TestExecutorRetriesTransient(t *testing.T) {
	e, slept := newTestExecutor(3)

	calls := 0
	err := e.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		if calls < 3 {
			return types.Transient(types.KindRateLimited, errors.New("429"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, *slept, 2)

	// Cumulative sleep respects the jitter floor: base*(2^0+2^1)*0.1.
	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	assert.GreaterOrEqual(t, total, 3*time.Millisecond)
}

func TestExecutorDoesNotRetryNonTransient(t *testing.T) {
	e, slept := newTestExecutor(3)

	calls := 0
	err := e.Do(context.Background(), "extract", func(context.Context) error {
		calls++
		return types.Recoverable(types.KindMalformedResponse, errors.New("not json"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	assert.Equal(t, types.KindMalformedResponse, types.KindOf(err))
}

func TestExecutorExhaustionIsFatal(t *testing.T) {
	e, slept := newTestExecutor(3)

	calls := 0
	err := e.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return types.Transient(types.KindNetworkTimeout, errors.New("deadline"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
	assert.Equal(t, types.KindProviderExhausted, types.KindOf(err))
	assert.Equal(t, types.ClassFatal, types.ClassOf(err))
}

func TestExecutorLimiterDenialConsumesAttempt(t *testing.T) {
	limiter := NewRateLimiter(LimiterConfig{RequestsPerMinute: 1, BurstLimit: 1})
	e := NewExecutor(limiter, NewBackoff(time.Millisecond, 10*time.Millisecond, 2), 2)
	e.sleep = func(context.Context, time.Duration) error { return nil }

	// Drain the limiter.
	require.True(t, limiter.Acquire())

	calls := 0
	err := e.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Zero(t, calls, "fn must not run when the limiter denies")
	assert.Equal(t, types.KindProviderExhausted, types.KindOf(err))
}

func TestExecutorHonorsCancellation(t *testing.T) {
	e, _ := newTestExecutor(5)
	e.sleep = sleepCtx // real sleep, cancelled context

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, "analyze", func(context.Context) error {
		return types.Transient(types.KindNetworkTimeout, errors.New("slow"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
