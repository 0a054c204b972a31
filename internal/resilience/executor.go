package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"stmtsep/internal/logging"
	"stmtsep/internal/types"
)

// Executor composes the rate limiter and backoff strategy around a fallible
// operation. Only transient failures are retried; everything else surfaces
// immediately.
type Executor struct {
	limiter     *RateLimiter
	backoff     *Backoff
	maxAttempts int
	log         *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

// NewExecutor builds an executor. maxAttempts < 1 is clamped to 1.
func NewExecutor(limiter *RateLimiter, backoff *Backoff, maxAttempts int) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		limiter:     limiter,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		log:         logging.For("resilience"),
		sleep:       sleepCtx,
	}
}

// Do runs fn under rate limiting with backoff. A limiter denial counts as a
// transient failure and consumes an attempt. After the final attempt the
// last transient failure is reclassified as ProviderExhausted.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var last error

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if !e.limiter.Acquire() {
			last = types.Transient(types.KindRateLimited, errors.New("rate limiter denied request"))
		} else {
			err := fn(ctx)
			if err == nil {
				return nil
			}
			if !types.IsTransient(err) {
				return err
			}
			last = err
		}

		if attempt == e.maxAttempts-1 {
			break
		}

		delay := e.backoff.Delay(attempt)
		e.log.Debug("transient failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(last))
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return types.Fatal(types.KindProviderExhausted, last)
}

// Stats exposes the underlying limiter snapshot.
func (e *Executor) Stats() Stats {
	return e.limiter.Stats()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
