package util

import (
	"context"
	"errors"
	"time"
)

// RetryErrWithContext calls fn up to maxTries times until it returns nil,
// stopping early when ctx is done or fn returns a context error.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Backoff returns the delay before retry number attempt (1-based): base,
// 2*base, 4*base and so on.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	return base << (attempt - 1)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryWithBackoff calls fn once and then up to maxRetries more times while it
// fails with an error retryable accepts, sleeping Backoff(base, n) through
// sleep before retry n. fn receives the 1-based attempt number. A failing
// sleep ends the loop; the last error of fn is returned either way.
func RetryWithBackoff(
	ctx context.Context,
	maxRetries int,
	base time.Duration,
	sleep func(ctx context.Context, d time.Duration) error,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) error,
) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if sleep == nil {
		sleep = SleepContext
	}
	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, Backoff(base, attempt-1)); err != nil {
				return lastErr
			}
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return lastErr
}
