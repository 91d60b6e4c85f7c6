package provider

import (
	"context"
	"errors"
	"time"
)

// Retry retries failed calls up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors, missing credentials and canceled
// contexts are returned immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return Intercept(func(ctx context.Context, op Op, call func(context.Context) error) error {
		var last error
		for i := 0; i < maxAttempts; i++ {
			err := call(ctx)
			if err == nil {
				return nil
			}
			if !retryable(err) {
				return err
			}
			last = err
			if i == maxAttempts-1 {
				break
			}
			t := time.NewTimer(baseDelay * time.Duration(1<<i))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		return last
	})
}

func retryable(err error) bool {
	var pErr *PermanentError
	switch {
	case errors.As(err, &pErr):
		return false
	case errors.Is(err, ErrMissingCredentials):
		return false
	case errors.Is(err, ErrBreakerOpen):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
