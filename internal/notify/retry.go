// Package notify fans alert events out to the configured notification
// backends with retry, timeout and partial-failure reporting.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RetryPolicy bounds delivery attempts. Backoff doubles after every
// failed attempt; each attempt runs under its own timeout.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy matches the notifier's configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// retryableError marks a failure worth retrying (network trouble, 5xx).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps an error so Do will retry it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// isRetryable reports whether an attempt failure is transient. Explicitly
// wrapped errors, timeouts and net errors retry; anything else (auth
// rejections, malformed requests) fails immediately.
func isRetryable(err error) bool {
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn with per-attempt timeouts and exponential backoff. It stops
// on success, a non-retryable error, exhausted retries, or parent context
// cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		lastErr = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
