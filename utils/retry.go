package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *Logger

	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// Do executes fn with exponential back-off retry logic. Errors rejected by
// Retryable are returned immediately and unwrapped. Waiting between attempts
// stops early when ctx is done; the error then wraps both ctx.Err() and the
// last attempt's error.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}

		if attempt < attempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt, attempts, lastErr, delay)
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return fmt.Errorf("%s interrupted after %d attempts: %w (last error: %w)", operationName, attempt, err, lastErr)
			}
			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
