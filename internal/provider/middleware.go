package provider

import (
	"context"
	"encoding/json"

	"atelier/internal/types"
)

// Middleware decorates a Provider to inject cross-cutting concerns
// (rate limiting, retries, circuit breaking, logging, hooks).
type Middleware func(Provider) Provider

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Provider, mws ...Middleware) Provider {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// Interceptor runs around a single provider call. call may be invoked more
// than once (retries) or not at all (open breaker, canceled context).
type Interceptor func(ctx context.Context, op Op, call func(context.Context) error) error

// Intercept turns an Interceptor into a Middleware that applies it uniformly
// to every provider operation.
func Intercept(icpt Interceptor) Middleware {
	return func(next Provider) Provider {
		return &intercepted{next: next, icpt: icpt}
	}
}

type intercepted struct {
	next Provider
	icpt Interceptor
}

func (p *intercepted) Name() string     { return p.next.Name() }
func (p *intercepted) Close() error     { return p.next.Close() }
func (p *intercepted) Unwrap() Provider { return p.next }

func (p *intercepted) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	var out Completion
	err := p.icpt(ctx, OpComplete, func(ctx context.Context) error {
		var err error
		out, err = p.next.Complete(ctx, req)
		return err
	})
	return out, err
}

func (p *intercepted) CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.icpt(ctx, OpCompleteStructured, func(ctx context.Context) error {
		var err error
		out, err = p.next.CompleteStructured(ctx, req)
		return err
	})
	return out, err
}

func (p *intercepted) GenerateImage(ctx context.Context, parts []Part) (types.Blob, error) {
	var out types.Blob
	err := p.icpt(ctx, OpGenerateImage, func(ctx context.Context) error {
		var err error
		out, err = p.next.GenerateImage(ctx, parts)
		return err
	})
	return out, err
}

func (p *intercepted) EditImage(ctx context.Context, image types.Blob, instruction string) (types.Blob, error) {
	var out types.Blob
	err := p.icpt(ctx, OpEditImage, func(ctx context.Context) error {
		var err error
		out, err = p.next.EditImage(ctx, image, instruction)
		return err
	})
	return out, err
}

func (p *intercepted) StartVideoJob(ctx context.Context, image types.Blob, prompt string, cfg VideoConfig) (JobHandle, error) {
	var out JobHandle
	err := p.icpt(ctx, OpStartVideoJob, func(ctx context.Context) error {
		var err error
		out, err = p.next.StartVideoJob(ctx, image, prompt, cfg)
		return err
	})
	return out, err
}

func (p *intercepted) PollJob(ctx context.Context, job JobHandle) (JobStatus, error) {
	var out JobStatus
	err := p.icpt(ctx, OpPollJob, func(ctx context.Context) error {
		var err error
		out, err = p.next.PollJob(ctx, job)
		return err
	})
	return out, err
}

func (p *intercepted) FetchResult(ctx context.Context, ref string) (types.Blob, error) {
	var out types.Blob
	err := p.icpt(ctx, OpFetchResult, func(ctx context.Context) error {
		var err error
		out, err = p.next.FetchResult(ctx, ref)
		return err
	})
	return out, err
}

func (p *intercepted) GroundedSearch(ctx context.Context, query string) ([]types.SourcingResult, error) {
	var out []types.SourcingResult
	err := p.icpt(ctx, OpGroundedSearch, func(ctx context.Context) error {
		var err error
		out, err = p.next.GroundedSearch(ctx, query)
		return err
	})
	return out, err
}
