package graph

import (
	"context"
	"time"
)

// RetryConfig configures automatic re-invocation of steps that fail with a
// retryable StepError. The retry budget is independent of cycle bounds:
// retries re-run the same step with the same input projection, cycles move
// the run through the graph.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations, initial attempt
	// included. Must be >= 1.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// invokeWithRetry runs invoke, retrying retryable StepErrors per the
// config. A nil config means a single attempt.
func invokeWithRetry(ctx context.Context, config *RetryConfig, invoke func(context.Context) (StepResult, error)) (StepResult, error) {
	maxAttempts := 1
	if config != nil && config.MaxAttempts > 1 {
		maxAttempts = config.MaxAttempts
	}

	var lastErr error
	delay := time.Duration(0)
	if config != nil {
		delay = config.InitialDelay
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := invoke(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == maxAttempts {
			break
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			next := time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && next > config.MaxDelay {
				next = config.MaxDelay
			}
			delay = next
		}
	}

	return nil, lastErr
}
