package provider

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

var ErrBreakerOpen = errors.New("provider: circuit open, backend unavailable")

// BreakerSettings configures CircuitBreaker. Zero values pick defaults.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// CircuitBreaker stops calling a failing backend after a run of consecutive
// failures and probes it again after OpenTimeout. Context cancellation and
// missing credentials do not count as backend failures.
func CircuitBreaker(name string, s BreakerSettings) Middleware {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("provider breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pErr *PermanentError
			return errors.Is(err, context.Canceled) ||
				errors.Is(err, ErrMissingCredentials) ||
				errors.As(err, &pErr)
		},
	})
	return Intercept(func(ctx context.Context, _ Op, call func(context.Context) error) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, call(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrBreakerOpen
		}
		return err
	})
}
