package provider

import (
	"context"
	"time"
)

// CallHook observes provider calls; attach one to a context with WithHook.
type CallHook interface {
	Before(ctx context.Context, stage string, op Op)
	After(ctx context.Context, stage string, op Op, elapsed time.Duration, err error)
}

type ctxKeyHook struct{}
type ctxKeyStage struct{}

// WithHook attaches a CallHook to the context.
func WithHook(ctx context.Context, hook CallHook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// WithStage labels every provider call made with ctx ("controller.turn",
// "pipeline.primary", ...).
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKeyStage{}, stage)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) CallHook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(CallHook); ok {
			return h
		}
	}
	return nil
}

// StageFrom returns the stage label stored in the context.
func StageFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyStage{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}

// WithHooks calls HookFrom(ctx).Before/After around each call.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return Intercept(func(ctx context.Context, op Op, call func(context.Context) error) error {
		hook := HookFrom(ctx)
		if hook == nil {
			return call(ctx)
		}
		stage := StageFrom(ctx)
		hook.Before(ctx, stage, op)
		start := time.Now()
		err := call(ctx)
		hook.After(ctx, stage, op, time.Since(start), err)
		return err
	})
}
