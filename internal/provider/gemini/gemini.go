// Package gemini implements provider.Provider on top of the official genai
// client. It only focuses on the API calls themselves; retries, rate limits,
// breaking and logging are applied by provider middleware.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	genai "google.golang.org/genai"

	"atelier/internal/provider"
	"atelier/internal/types"
)

const (
	DefaultChatModel      = "gemini-3-flash-preview"
	DefaultReasoningModel = "gemini-3-pro-preview"
	DefaultImageModel     = "gemini-3-pro-image-preview"
	DefaultEditModel      = "gemini-2.5-flash-image"
	DefaultVideoModel     = "veo-3.1-fast-generate-preview"
)

// inlinePrefix marks result refs whose bytes came back inline with the
// finished operation instead of behind a download URI.
const inlinePrefix = "inline:"

type Models struct {
	Chat      string
	Reasoning string
	Image     string
	Edit      string
	Video     string
}

func (m Models) withDefaults() Models {
	m.Chat = firstNonEmpty(m.Chat, DefaultChatModel)
	m.Reasoning = firstNonEmpty(m.Reasoning, DefaultReasoningModel)
	m.Image = firstNonEmpty(m.Image, DefaultImageModel)
	m.Edit = firstNonEmpty(m.Edit, DefaultEditModel)
	m.Video = firstNonEmpty(m.Video, DefaultVideoModel)
	return m
}

type Client struct {
	cli    *genai.Client
	models Models

	mu     sync.Mutex
	inline map[string]types.Blob
}

func New(ctx context.Context, apiKey string, models Models) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, provider.ErrMissingCredentials
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{cli: cli, models: models.withDefaults(), inline: map[string]types.Blob{}}, nil
}

func (c *Client) Name() string { return "gemini" }
func (c *Client) Close() error { return nil }

func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	cfg := &genai.GenerateContentConfig{SystemInstruction: systemContent(req.System)}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	resp, err := c.cli.Models.GenerateContent(ctx, c.models.Chat, toContents(req.Contents), cfg)
	if err != nil {
		return provider.Completion{}, err
	}
	var out provider.Completion
	var text []string
	for _, p := range firstParts(resp) {
		switch {
		case p.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
		case p.Text != "" && !p.Thought:
			text = append(text, p.Text)
		}
	}
	out.Text = strings.Join(text, "")
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return out, provider.ErrEmptyResponse
	}
	return out, nil
}

func (c *Client) CompleteStructured(ctx context.Context, req provider.StructuredRequest) (json.RawMessage, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemContent(req.System),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    toSchema(req.Schema),
	}
	resp, err := c.cli.Models.GenerateContent(ctx, c.models.Reasoning, toContents(req.Contents), cfg)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, p := range firstParts(resp) {
		if !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	raw := strings.TrimSpace(sb.String())
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil, provider.ErrInvalidJSON
	}
	return json.RawMessage(raw), nil
}

func (c *Client) GenerateImage(ctx context.Context, parts []provider.Part) (types.Blob, error) {
	return c.image(ctx, c.models.Image, parts)
}

func (c *Client) EditImage(ctx context.Context, image types.Blob, instruction string) (types.Blob, error) {
	return c.image(ctx, c.models.Edit, []provider.Part{provider.MediaPart(image), provider.TextPart(instruction)})
}

func (c *Client) image(ctx context.Context, model string, parts []provider.Part) (types.Blob, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	resp, err := c.cli.Models.GenerateContent(ctx, model, []*genai.Content{{Role: string(genai.RoleUser), Parts: toParts(parts)}}, cfg)
	if err != nil {
		return types.Blob{}, err
	}
	for _, p := range firstParts(resp) {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return types.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
		}
	}
	return types.Blob{}, provider.ErrNoImage
}

func (c *Client) StartVideoJob(ctx context.Context, image types.Blob, prompt string, cfg provider.VideoConfig) (provider.JobHandle, error) {
	vcfg := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    cfg.AspectRatio,
		Resolution:     cfg.Resolution,
	}
	op, err := c.cli.Models.GenerateVideos(ctx, c.models.Video, prompt,
		&genai.Image{ImageBytes: image.Data, MIMEType: image.MIMEType}, vcfg)
	if err != nil {
		return provider.JobHandle{}, err
	}
	if op == nil || op.Name == "" {
		return provider.JobHandle{}, provider.ErrEmptyResponse
	}
	return provider.JobHandle{ID: op.Name}, nil
}

func (c *Client) PollJob(ctx context.Context, job provider.JobHandle) (provider.JobStatus, error) {
	op, err := c.cli.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: job.ID}, nil)
	if err != nil {
		return provider.JobStatus{}, err
	}
	if !op.Done {
		return provider.JobStatus{}, nil
	}
	if len(op.Error) > 0 {
		return provider.JobStatus{}, &provider.PermanentError{Err: fmt.Errorf("%w: %v", provider.ErrJobFailed, op.Error["message"])}
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return provider.JobStatus{}, &provider.PermanentError{Err: provider.ErrJobFailed}
	}
	v := op.Response.GeneratedVideos[0].Video
	if v.URI != "" {
		return provider.JobStatus{Done: true, ResultRef: v.URI}, nil
	}
	ref := inlinePrefix + job.ID
	c.mu.Lock()
	c.inline[ref] = types.Blob{MIMEType: firstNonEmpty(v.MIMEType, "video/mp4"), Data: v.VideoBytes}
	c.mu.Unlock()
	return provider.JobStatus{Done: true, ResultRef: ref}, nil
}

func (c *Client) FetchResult(ctx context.Context, ref string) (types.Blob, error) {
	if strings.HasPrefix(ref, inlinePrefix) {
		c.mu.Lock()
		b, ok := c.inline[ref]
		delete(c.inline, ref)
		c.mu.Unlock()
		if !ok {
			return types.Blob{}, &provider.PermanentError{Err: fmt.Errorf("gemini: unknown result %q", ref)}
		}
		return b, nil
	}
	data, err := c.cli.Files.Download(ctx, genai.NewDownloadURIFromVideo(&genai.Video{URI: ref}), nil)
	if err != nil {
		return types.Blob{}, err
	}
	return types.Blob{MIMEType: "video/mp4", Data: data}, nil
}

func (c *Client) GroundedSearch(ctx context.Context, query string) ([]types.SourcingResult, error) {
	cfg := &genai.GenerateContentConfig{Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}}
	resp, err := c.cli.Models.GenerateContent(ctx, c.models.Chat,
		[]*genai.Content{genai.NewContentFromText("Find suppliers for: "+query, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil, nil
	}
	var out []types.SourcingResult
	for _, ch := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if ch == nil || ch.Web == nil || ch.Web.URI == "" {
			continue
		}
		out = append(out, types.SourcingResult{Title: ch.Web.Title, URL: ch.Web.URI})
	}
	return out, nil
}

func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func systemContent(s string) *genai.Content {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return genai.NewContentFromText(s, genai.RoleUser)
}

func toContents(in []provider.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(in))
	for _, c := range in {
		role := c.Role
		if role != string(genai.RoleModel) {
			role = string(genai.RoleUser)
		}
		out = append(out, &genai.Content{Role: role, Parts: toParts(c.Parts)})
	}
	return out
}

func toParts(in []provider.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(in))
	for _, p := range in {
		if p.IsMedia() {
			out = append(out, genai.NewPartFromBytes(p.Media.Data, p.Media.MIMEType))
			continue
		}
		out = append(out, genai.NewPartFromText(p.Text))
	}
	return out
}

func toSchema(s *provider.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(s.Type))),
		Description: s.Description,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toSchema(v)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
