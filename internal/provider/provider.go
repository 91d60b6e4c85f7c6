// Package provider abstracts the generative backend: text and tool
// completion, schema-constrained completion, image generation and editing,
// long-running video jobs and grounded web search. It carries no business
// logic; callers compose prompts and interpret results.
package provider

import (
	"context"
	"encoding/json"
	"errors"

	"atelier/internal/types"
)

var (
	ErrMissingCredentials = errors.New("provider: capability credentials are not configured")
	ErrNoImage            = errors.New("provider: response carried no image")
	ErrInvalidJSON        = errors.New("provider: invalid JSON from model")
	ErrEmptyResponse      = errors.New("provider: empty response")
	ErrJobFailed          = errors.New("provider: job finished with an error")
)

// PermanentError marks failures that retrying cannot fix (bad request, safety
// block, unsupported model).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "provider: permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Op names a provider operation for interceptors and logs.
type Op string

const (
	OpComplete           Op = "complete"
	OpCompleteStructured Op = "complete_structured"
	OpGenerateImage      Op = "generate_image"
	OpEditImage          Op = "edit_image"
	OpStartVideoJob      Op = "start_video_job"
	OpPollJob            Op = "poll_job"
	OpFetchResult        Op = "fetch_result"
	OpGroundedSearch     Op = "grounded_search"
)

// Part is either text or a media blob.
type Part struct {
	Text  string     `json:"text,omitempty"`
	Media types.Blob `json:"media,omitempty"`
}

func TextPart(s string) Part      { return Part{Text: s} }
func MediaPart(b types.Blob) Part { return Part{Media: b} }
func (p Part) IsMedia() bool      { return !p.Media.Empty() }

func Texts(parts ...string) []Part {
	out := make([]Part, 0, len(parts))
	for _, s := range parts {
		out = append(out, TextPart(s))
	}
	return out
}

// Content roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type CompletionRequest struct {
	System   string       `json:"system"`
	Contents []Content    `json:"contents"`
	Tools    []ToolSchema `json:"tools,omitempty"`
}

// ToolNames lists the registered tool names in order.
func (r CompletionRequest) ToolNames() []string {
	out := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		out = append(out, t.Name)
	}
	return out
}

type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type Completion struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

type StructuredRequest struct {
	System   string    `json:"system"`
	Contents []Content `json:"contents"`
	Schema   *Schema   `json:"schema"`
}

type VideoConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

type JobHandle struct {
	ID string `json:"id"`
}

type JobStatus struct {
	Done      bool   `json:"done"`
	ResultRef string `json:"resultRef,omitempty"`
}

// Provider is the narrow capability interface the core drives.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	CompleteStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error)
	GenerateImage(ctx context.Context, parts []Part) (types.Blob, error)
	EditImage(ctx context.Context, image types.Blob, instruction string) (types.Blob, error)
	StartVideoJob(ctx context.Context, image types.Blob, prompt string, cfg VideoConfig) (JobHandle, error)
	PollJob(ctx context.Context, job JobHandle) (JobStatus, error)
	FetchResult(ctx context.Context, ref string) (types.Blob, error)
	GroundedSearch(ctx context.Context, query string) ([]types.SourcingResult, error)
	Close() error
}

// IsConfigured reports whether p (or whatever it decorates) can reach a real
// backend.
func IsConfigured(p Provider) bool {
	for p != nil {
		if _, ok := p.(Unconfigured); ok {
			return false
		}
		u, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			return true
		}
		p = u.Unwrap()
	}
	return false
}
