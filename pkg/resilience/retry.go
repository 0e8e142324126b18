package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures exponential backoff retries. Errors are permanent
// unless Retryable reports otherwise.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Retryable     func(error) bool
}

// DefaultRetryConfig returns three attempts starting at 200ms
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2,
	}
}

func (c *RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.BackoffFactor)
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// Retry calls fn until it succeeds, returns a permanent error, the context
// ends or MaxAttempts is reached.
func Retry(ctx context.Context, config *RetryConfig, fn func(ctx context.Context) error) error {
	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if config.Retryable == nil || !config.Retryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = config.next(delay)
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}
