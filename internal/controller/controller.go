// Package controller runs one conversational turn against the reasoning
// model. It decides which asset content the model may see, interprets tool
// invocations, and performs at most one disclosure round-trip per turn. It
// does not mutate session state; the caller commits the reply.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/registry"
	"atelier/internal/types"
)

const DefaultHistoryWindow = 20

type Request struct {
	// History is the chat log before this turn, oldest first.
	History []types.ChatMessage
	Text    string
	// Selected is the sticky disclosure selection.
	Selected []string
}

type Reply struct {
	Text          string
	ReasoningNote string
	Invocations   []llmtool.ConceptArgs
	// Disclosed lists assets loaded through view_assets this turn. They are
	// not added to the sticky selection.
	Disclosed []string
}

type Options struct {
	Logger        *log.Logger
	HistoryWindow int
}

type Controller struct {
	p      provider.Provider
	reg    *registry.Registry
	log    *log.Logger
	window int
}

func New(p provider.Provider, reg *registry.Registry, o Options) *Controller {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	return &Controller{p: p, reg: reg, log: o.Logger, window: o.HistoryWindow}
}

// Converse runs one turn. The returned Reply is always presentable: on a
// provider failure it carries an apology and no invocations alongside the
// error.
func (c *Controller) Converse(ctx context.Context, req Request) (Reply, error) {
	if !provider.IsConfigured(c.p) {
		return Reply{Text: UnconfiguredReply}, provider.ErrMissingCredentials
	}
	ctx = provider.WithStage(ctx, "controller.turn")

	selected := c.known(req.Selected)
	contents := c.history(req.History)
	turn := []provider.Part{provider.TextPart(c.manifest(selected))}
	turn = append(turn, c.disclose(selected)...)
	turn = append(turn, provider.TextPart(req.Text))
	contents = append(contents, provider.Content{Role: provider.RoleUser, Parts: turn})

	first, err := c.p.Complete(ctx, provider.CompletionRequest{
		System:   SystemInstruction,
		Contents: contents,
		Tools:    []provider.ToolSchema{llmtool.GenerateConceptsTool, llmtool.ViewAssetsTool},
	})
	if err != nil {
		return Reply{Text: ErrorReply}, fmt.Errorf("controller: %w", err)
	}

	var reply Reply
	var refs []string
	requested := false
	for _, call := range first.ToolCalls {
		switch call.Name {
		case llmtool.ToolGenerateConcepts:
			reply.Invocations = append(reply.Invocations, llmtool.DecodeConceptArgs(call.Args))
		case llmtool.ToolViewAssets:
			requested = true
			refs = append(refs, llmtool.DecodeAssetRefs(call.Args)...)
		default:
			c.log.Printf("controller: ignoring unknown tool %q", call.Name)
		}
	}
	text := first.Text

	if requested {
		loaded, missing := c.resolve(refs, selected)
		reply.Disclosed = loaded
		note := followUpNote
		if len(missing) > 0 {
			note += " These could not be found: " + strings.Join(missing, ", ") + "."
		}
		batch := append(c.disclose(loaded), provider.TextPart(note))
		if strings.TrimSpace(first.Text) != "" {
			contents = append(contents, provider.Content{Role: provider.RoleModel, Parts: provider.Texts(first.Text)})
		}
		contents = append(contents, provider.Content{Role: provider.RoleUser, Parts: batch})

		second, err := c.p.Complete(provider.WithStage(ctx, "controller.followup"), provider.CompletionRequest{
			System:   SystemInstruction,
			Contents: contents,
			Tools:    []provider.ToolSchema{llmtool.GenerateConceptsTool},
		})
		if err != nil {
			return Reply{Text: ErrorReply}, fmt.Errorf("controller: follow-up: %w", err)
		}
		for _, call := range second.ToolCalls {
			if call.Name == llmtool.ToolGenerateConcepts {
				reply.Invocations = append(reply.Invocations, llmtool.DecodeConceptArgs(call.Args))
				continue
			}
			c.log.Printf("controller: ignoring %q in follow-up", call.Name)
		}
		text = second.Text
		reply.ReasoningNote = "Loaded " + c.names(loaded) + " for review."
	}

	reply.Text = strings.TrimSpace(text)
	if len(reply.Invocations) > 0 && reply.ReasoningNote == "" {
		reply.ReasoningNote = FallbackReasoning
	}
	if reply.Text == "" {
		reply.Text = EmptyReply
		if len(reply.Invocations) > 0 {
			reply.Text = FallbackReply
		}
	}
	return reply, nil
}

// history replays prior turns as text. The welcome message, system notices
// and reasoning notes are never replayed.
func (c *Controller) history(msgs []types.ChatMessage) []provider.Content {
	var kept []types.ChatMessage
	for _, m := range msgs {
		if m.ID == types.WelcomeMessageID || m.Role == types.RoleSystem || strings.TrimSpace(m.Text) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > c.window {
		kept = kept[len(kept)-c.window:]
	}
	out := make([]provider.Content, 0, len(kept))
	for _, m := range kept {
		role := provider.RoleUser
		if m.Role == types.RoleAgent {
			role = provider.RoleModel
		}
		out = append(out, provider.Content{Role: role, Parts: provider.Texts(m.Text)})
	}
	return out
}

// manifest names every asset without content.
func (c *Controller) manifest(selected []string) string {
	refs := c.reg.Manifest(selected)
	if len(refs) == 0 {
		return "Available assets: none uploaded yet."
	}
	var b strings.Builder
	b.WriteString("Available assets (names only unless marked [Shared]):\n")
	for _, r := range refs {
		fmt.Fprintf(&b, "- id=%s name=%q kind=%s", r.ID, r.DisplayName, r.Kind)
		if r.Disclosed {
			b.WriteString(" [Shared]")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// disclose attaches full content for ids, each tagged with its provenance.
func (c *Controller) disclose(ids []string) []provider.Part {
	var parts []provider.Part
	for _, id := range ids {
		a, err := c.reg.Get(id)
		if err != nil {
			continue
		}
		head := fmt.Sprintf("The user is sharing asset %q (id=%s, %s):", a.DisplayName, a.ID, a.Kind)
		if a.Kind == types.AssetText {
			parts = append(parts, provider.TextPart(head+"\n"+string(a.Payload.Data)))
			continue
		}
		parts = append(parts, provider.TextPart(head), provider.MediaPart(a.Payload))
	}
	return parts
}

// resolve maps model-supplied refs onto registry ids, skipping assets that
// are already visible.
func (c *Controller) resolve(refs, selected []string) (loaded, missing []string) {
	seen := map[string]bool{}
	for _, id := range selected {
		seen[id] = true
	}
	for _, ref := range refs {
		a, err := c.reg.Resolve(ref)
		if errors.Is(err, registry.ErrNotFound) {
			missing = append(missing, ref)
			continue
		}
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		loaded = append(loaded, a.ID)
	}
	return loaded, missing
}

func (c *Controller) known(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := c.reg.Get(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func (c *Controller) names(ids []string) string {
	if len(ids) == 0 {
		return "no new assets"
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if a, err := c.reg.Get(id); err == nil {
			names = append(names, a.DisplayName)
		}
	}
	return strings.Join(names, ", ")
}
