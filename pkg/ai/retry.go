package ai

import (
	"context"
	"time"
)

const defaultMaxRetries = 3

// WithRetry runs fn, retrying only rate-limited failures with exponential
// backoff (1s, 2s, 4s). Any other error returns immediately. After the
// final attempt the last rate-limit error is returned to the caller, which
// is expected to convert it into a user-visible quota message.
func WithRetry(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	return withRetry(ctx, defaultMaxRetries, sleepContext, fn)
}

func withRetry(ctx context.Context, maxRetries int, sleep func(context.Context, time.Duration) error, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			if err := sleep(ctx, time.Duration(1<<uint(i-1))*time.Second); err != nil {
				return "", err
			}
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRateLimited(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// sleepContext waits for d, returning early with the context error when the
// caller cancels mid-backoff.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
