// Package fake provides a scripted, in-memory Provider. It records every call
// so tests can assert on exactly what crossed the provider boundary.
package fake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"atelier/internal/provider"
	"atelier/internal/types"
)

// Call is one recorded provider invocation.
type Call struct {
	Op      provider.Op
	Stage   string
	Request any
}

type ImageRequest struct {
	Parts []provider.Part
}

type EditRequest struct {
	Image       types.Blob
	Instruction string
}

type VideoRequest struct {
	Image  types.Blob
	Prompt string
	Config provider.VideoConfig
}

// Provider is safe for concurrent use. The On* hooks are read without
// locking, so set them before the provider is shared.
type Provider struct {
	mu    sync.Mutex
	calls []Call
	seq   int
	queue []provider.Completion

	OnComplete           func(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error)
	OnCompleteStructured func(ctx context.Context, req provider.StructuredRequest) (json.RawMessage, error)
	OnGenerateImage      func(ctx context.Context, parts []provider.Part) (types.Blob, error)
	OnEditImage          func(ctx context.Context, image types.Blob, instruction string) (types.Blob, error)
	OnStartVideoJob      func(ctx context.Context, image types.Blob, prompt string, cfg provider.VideoConfig) (provider.JobHandle, error)
	OnPollJob            func(ctx context.Context, job provider.JobHandle) (provider.JobStatus, error)
	OnFetchResult        func(ctx context.Context, ref string) (types.Blob, error)
	OnGroundedSearch     func(ctx context.Context, query string) ([]types.SourcingResult, error)
}

func New() *Provider { return &Provider{} }

// Script queues completions returned in order by Complete when OnComplete is
// unset. Once drained, Complete answers with a neutral reply.
func (p *Provider) Script(completions ...provider.Completion) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, completions...)
	return p
}

func (p *Provider) Name() string { return "fake" }
func (p *Provider) Close() error { return nil }

func (p *Provider) record(ctx context.Context, op provider.Op, req any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.calls = append(p.calls, Call{Op: op, Stage: provider.StageFrom(ctx), Request: req})
	return p.seq
}

// Calls returns a copy of every recorded call in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsFor returns the recorded calls of one operation.
func (p *Provider) CallsFor(op provider.Op) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *Provider) Count(op provider.Op) int { return len(p.CallsFor(op)) }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	p.record(ctx, provider.OpComplete, req)
	if p.OnComplete != nil {
		return p.OnComplete(ctx, req)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return provider.Completion{Text: "Noted."}, nil
	}
	out := p.queue[0]
	p.queue = p.queue[1:]
	return out, nil
}

func (p *Provider) CompleteStructured(ctx context.Context, req provider.StructuredRequest) (json.RawMessage, error) {
	p.record(ctx, provider.OpCompleteStructured, req)
	if p.OnCompleteStructured != nil {
		return p.OnCompleteStructured(ctx, req)
	}
	return json.RawMessage(`{}`), nil
}

func (p *Provider) GenerateImage(ctx context.Context, parts []provider.Part) (types.Blob, error) {
	n := p.record(ctx, provider.OpGenerateImage, ImageRequest{Parts: parts})
	if p.OnGenerateImage != nil {
		return p.OnGenerateImage(ctx, parts)
	}
	return Image(n), nil
}

func (p *Provider) EditImage(ctx context.Context, image types.Blob, instruction string) (types.Blob, error) {
	n := p.record(ctx, provider.OpEditImage, EditRequest{Image: image, Instruction: instruction})
	if p.OnEditImage != nil {
		return p.OnEditImage(ctx, image, instruction)
	}
	return Image(n), nil
}

func (p *Provider) StartVideoJob(ctx context.Context, image types.Blob, prompt string, cfg provider.VideoConfig) (provider.JobHandle, error) {
	n := p.record(ctx, provider.OpStartVideoJob, VideoRequest{Image: image, Prompt: prompt, Config: cfg})
	if p.OnStartVideoJob != nil {
		return p.OnStartVideoJob(ctx, image, prompt, cfg)
	}
	return provider.JobHandle{ID: fmt.Sprintf("job-%d", n)}, nil
}

func (p *Provider) PollJob(ctx context.Context, job provider.JobHandle) (provider.JobStatus, error) {
	p.record(ctx, provider.OpPollJob, job)
	if p.OnPollJob != nil {
		return p.OnPollJob(ctx, job)
	}
	return provider.JobStatus{Done: true, ResultRef: job.ID + "/result"}, nil
}

func (p *Provider) FetchResult(ctx context.Context, ref string) (types.Blob, error) {
	p.record(ctx, provider.OpFetchResult, ref)
	if p.OnFetchResult != nil {
		return p.OnFetchResult(ctx, ref)
	}
	return types.Blob{MIMEType: "video/mp4", Data: []byte("fake-video:" + ref)}, nil
}

func (p *Provider) GroundedSearch(ctx context.Context, query string) ([]types.SourcingResult, error) {
	p.record(ctx, provider.OpGroundedSearch, query)
	if p.OnGroundedSearch != nil {
		return p.OnGroundedSearch(ctx, query)
	}
	return nil, nil
}

// Image renders a small PNG whose pixels encode n, so distinct calls yield
// distinct, decodable images.
func Image(n int) types.Blob {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := color.RGBA{R: uint8(n), G: uint8(n >> 8), B: 0x80, A: 0xff}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return types.Blob{MIMEType: "image/png", Data: buf.Bytes()}
}
