package provider

import (
	"context"
	"encoding/json"

	"atelier/internal/types"
)

// Unconfigured stands in when no credentials are available. Every call fails
// with ErrMissingCredentials without leaving the process.
type Unconfigured struct{}

func (Unconfigured) Name() string { return "unconfigured" }
func (Unconfigured) Close() error { return nil }

func (Unconfigured) Complete(context.Context, CompletionRequest) (Completion, error) {
	return Completion{}, ErrMissingCredentials
}

func (Unconfigured) CompleteStructured(context.Context, StructuredRequest) (json.RawMessage, error) {
	return nil, ErrMissingCredentials
}

func (Unconfigured) GenerateImage(context.Context, []Part) (types.Blob, error) {
	return types.Blob{}, ErrMissingCredentials
}

func (Unconfigured) EditImage(context.Context, types.Blob, string) (types.Blob, error) {
	return types.Blob{}, ErrMissingCredentials
}

func (Unconfigured) StartVideoJob(context.Context, types.Blob, string, VideoConfig) (JobHandle, error) {
	return JobHandle{}, ErrMissingCredentials
}

func (Unconfigured) PollJob(context.Context, JobHandle) (JobStatus, error) {
	return JobStatus{}, ErrMissingCredentials
}

func (Unconfigured) FetchResult(context.Context, string) (types.Blob, error) {
	return types.Blob{}, ErrMissingCredentials
}

func (Unconfigured) GroundedSearch(context.Context, string) ([]types.SourcingResult, error) {
	return nil, ErrMissingCredentials
}
