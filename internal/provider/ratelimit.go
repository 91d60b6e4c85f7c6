package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit limits request rate with a token bucket. Each attempt consumes a
// token, so place it inside Retry. If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next Provider) Provider { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return Intercept(func(ctx context.Context, _ Op, call func(context.Context) error) error {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		return call(ctx)
	})
}
