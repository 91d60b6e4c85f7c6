package provider

import (
	"log"
	"time"
)

// StackOptions configures Standard.
type StackOptions struct {
	Logger         *log.Logger
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RPS            float64
	Burst          int
	Breaker        BreakerSettings
}

// Standard decorates p with the default middleware chain:
// hooks -> logging -> retry -> circuit breaker -> rate limit -> p.
func Standard(p Provider, o StackOptions) Provider {
	return Wrap(p,
		WithHooks(),
		WithLogging(o.Logger),
		Retry(o.RetryAttempts, o.RetryBaseDelay),
		CircuitBreaker(p.Name(), o.Breaker),
		RateLimit(o.RPS, o.Burst),
	)
}
