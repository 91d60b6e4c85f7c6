package provider

import (
	"context"
	"log"
	"time"
)

// WithLogging logs each call's stage, duration and error. Provide a custom
// logger or nil to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return Intercept(func(ctx context.Context, op Op, call func(context.Context) error) error {
		start := time.Now()
		err := call(ctx)
		if err != nil {
			logger.Printf("provider %s (%s): error after %s: %v", op, StageFrom(ctx), time.Since(start).Round(time.Millisecond), err)
			return err
		}
		logger.Printf("provider %s (%s): ok in %s", op, StageFrom(ctx), time.Since(start).Round(time.Millisecond))
		return nil
	})
}
