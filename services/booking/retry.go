package booking

import (
	"context"
	"time"
)

// retryWithBackoff calls fn up to attempts times. Between attempts it sleeps base,
// 2*base, 4*base and so on, but only while retryable(err) holds.
func retryWithBackoff[T any](
	ctx context.Context,
	attempts int,
	base time.Duration,
	retryable func(error) bool,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts || !retryable(err) {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return zero, lastErr
}
