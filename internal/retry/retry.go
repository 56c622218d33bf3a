package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffFunc returns the wait before the next try, given the attempt that just failed (1-based).
type BackoffFunc func(attempt int) time.Duration

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable reports whether err may be retried. Nil retries everything except context cancellation.
	Retryable func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// ExhaustedError wraps the last error once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Linear waits base*attempt.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(attempt)
	}
}

// Exponential waits base*2^attempt, capped at max when max > 0.
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := base
		for i := 0; i < attempt; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				return max
			}
		}
		return delay
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// It returns the number of attempts made.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = SleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !retryable(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		var delay time.Duration
		if policy.Backoff != nil {
			delay = policy.Backoff(attempt)
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func defaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// SleepWithContext waits for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
