package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobtracker/internal/llm"
)

// Sleeper waits between attempts. Tests replace it with a recorder.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

// RealSleeper blocks for d or until ctx is done.
var RealSleeper Sleeper = timerSleeper{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// RetryPolicy is shared by every model call in the pipeline.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 60 * time.Second}
}

type Retrier struct {
	policy  RetryPolicy
	sleeper Sleeper
	logger  *zap.Logger
}

func NewRetrier(policy RetryPolicy, sleeper Sleeper, logger *zap.Logger) *Retrier {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if sleeper == nil {
		sleeper = RealSleeper
	}
	return &Retrier{policy: policy, sleeper: sleeper, logger: logger}
}

// Do runs fn up to Attempts times. A rate-limit error waits the current
// delay and then doubles it; any other error waits the current delay
// unchanged. Nothing waits after the last attempt.
func (r *Retrier) Do(ctx context.Context, purpose string, fn func(ctx context.Context) error) error {
	delay := r.policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.policy.Attempts {
			break
		}

		rateLimited := errors.Is(err, llm.ErrRateLimited)
		r.logger.Warn("Model call failed, retrying",
			zap.String("purpose", purpose),
			zap.Int("attempt", attempt),
			zap.Bool("rate_limited", rateLimited),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
		if rateLimited {
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", purpose, r.policy.Attempts, lastErr)
}
