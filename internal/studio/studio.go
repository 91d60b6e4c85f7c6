// Package studio is the command surface of a design session. It owns the
// status gate and the observable snapshot, and hands each command to the
// engine that implements it. Long work (concept rendering, derivative
// cascades, tech pack synthesis, video jobs) runs in tracked goroutines so
// commands return promptly; Wait blocks until that work settles.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier/internal/controller"
	"atelier/internal/edit"
	"atelier/internal/llmtool"
	"atelier/internal/pipeline"
	"atelier/internal/provider"
	"atelier/internal/registry"
	"atelier/internal/runway"
	"atelier/internal/state"
	"atelier/internal/status"
	"atelier/internal/techpack"
	"atelier/internal/types"
)

var (
	ErrNotFound     = errors.New("studio: not found")
	ErrEmptyMessage = errors.New("studio: message is empty")
	ErrClosed       = errors.New("studio: closed")
)

const DefaultWelcome = "Welcome to Atelier. Upload inspiration or describe your vision to begin."

type Options struct {
	Logger        *log.Logger
	Welcome       string
	HistoryWindow int
	// ManualDisclosure keeps new uploads out of the shared selection until the
	// user toggles them.
	ManualDisclosure bool
	TechPack         techpack.Options
	Runway           runway.Options
}

type Studio struct {
	p     provider.Provider
	log   *log.Logger
	gate  *status.Gate
	store *state.Store
	reg   *registry.Registry

	ctl    *controller.Controller
	pipe   *pipeline.Pipeline
	derivs *pipeline.Derivatives
	edits  *edit.Engine
	packs  *techpack.Synthesizer
	runway *runway.Renderer

	manualDisclosure bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	stopProducing context.CancelFunc
}

func New(p provider.Provider, o Options) *Studio {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Welcome == "" {
		o.Welcome = DefaultWelcome
	}
	if o.TechPack.Logger == nil {
		o.TechPack.Logger = o.Logger
	}
	if o.Runway.Logger == nil {
		o.Runway.Logger = o.Logger
	}

	store := state.New(types.ChatMessage{
		ID:        types.WelcomeMessageID,
		Role:      types.RoleSystem,
		Text:      o.Welcome,
		Timestamp: time.Now().UTC(),
	})
	reg := registry.New()
	renderer := pipeline.NewRenderer(p)
	derivs := pipeline.NewDerivatives(renderer, store, o.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Studio{
		p:                p,
		log:              o.Logger,
		gate:             status.New(),
		store:            store,
		reg:              reg,
		ctl:              controller.New(p, reg, controller.Options{Logger: o.Logger, HistoryWindow: o.HistoryWindow}),
		pipe:             pipeline.New(renderer, derivs, store, o.Logger),
		derivs:           derivs,
		edits:            edit.New(p, store, derivs, o.Logger),
		packs:            techpack.New(p, store, derivs, o.TechPack),
		runway:           runway.New(p, store, o.Runway),
		manualDisclosure: o.ManualDisclosure,
		ctx:              ctx,
		cancel:           cancel,
	}
	s.gate.OnChange(func(tr status.Transition) {
		s.store.SetStatus(tr.To, tr.Seq)
		if tr.To == types.StatusIdle {
			s.kick()
		}
	})
	return s
}

// Snapshot returns the current observable state.
func (s *Studio) Snapshot() types.Snapshot { return s.store.Snapshot() }

// Subscribe streams snapshots, latest first; call the returned func to stop.
func (s *Studio) Subscribe() (<-chan types.Snapshot, func()) { return s.store.Subscribe() }

func (s *Studio) Status() types.AgentStatus { return s.gate.Current() }

func (s *Studio) Configured() bool { return provider.IsConfigured(s.p) }

func (s *Studio) Scenarios() *runway.Catalog { return s.runway.Catalog() }

// Wait blocks until all background work has settled.
func (s *Studio) Wait() { s.wg.Wait() }

// Close cancels background work and waits for it.
func (s *Studio) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// SendMessage runs one conversational turn. It is rejected without any state
// change while the studio is busy. When the model asks for designs the
// concept pair is rendered in the background and the studio stays in the
// generating state until both branches settle.
func (s *Studio) SendMessage(ctx context.Context, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, ErrEmptyMessage
	}
	if s.ctx.Err() != nil {
		return types.ChatMessage{}, ErrClosed
	}
	lease, err := s.gate.TryAcquire(types.StatusThinking)
	if err != nil {
		return types.ChatMessage{}, err
	}

	before := s.store.Snapshot()
	s.store.AppendChat(message(types.RoleUser, text, ""))

	reply, err := s.ctl.Converse(ctx, controller.Request{
		History:  before.Chat,
		Text:     text,
		Selected: before.SelectedAssetIDs,
	})
	msg := message(types.RoleAgent, reply.Text, reply.ReasoningNote)
	s.store.AppendChat(msg)
	if err != nil {
		lease.Release()
		if errors.Is(err, provider.ErrMissingCredentials) {
			return msg, nil
		}
		s.log.Printf("studio: turn failed: %v", err)
		return msg, err
	}
	if len(reply.Invocations) == 0 {
		lease.Release()
		return msg, nil
	}
	if len(reply.Invocations) > 1 {
		s.log.Printf("studio: %d concept requests in one turn, rendering the last", len(reply.Invocations))
	}
	if err := lease.Switch(types.StatusGenerating); err != nil {
		lease.Release()
		return msg, err
	}
	args := reply.Invocations[len(reply.Invocations)-1]
	s.track(func(ctx context.Context) {
		defer lease.Release()
		s.generate(ctx, args)
	})
	return msg, nil
}

// GenerateConcepts renders a concept pair from an explicit brief, bypassing
// the conversation.
func (s *Studio) GenerateConcepts(args llmtool.ConceptArgs) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	lease, err := s.gate.TryAcquire(types.StatusGenerating)
	if err != nil {
		return err
	}
	s.track(func(ctx context.Context) {
		defer lease.Release()
		s.generate(ctx, args)
	})
	return nil
}

func (s *Studio) generate(ctx context.Context, args llmtool.ConceptArgs) {
	if _, err := s.pipe.Generate(ctx, args); err != nil {
		s.log.Printf("studio: concept generation: %v", err)
		s.notice("Some concept images could not be generated. The other results are still available.")
	}
}

// UploadAsset registers an inspiration asset. Unless manual disclosure is
// configured it is also shared with the model from the next turn on.
func (s *Studio) UploadAsset(payload types.Blob, name string) (types.InspirationAsset, error) {
	a, err := s.reg.Add(payload, name)
	if err != nil {
		return types.InspirationAsset{}, err
	}
	s.store.AddAsset(types.AssetRef{ID: a.ID, DisplayName: a.DisplayName, Kind: a.Kind})
	if !s.manualDisclosure {
		s.store.ToggleSelection(a.ID)
	}
	return a, nil
}

// ToggleAssetDisclosure flips whether the asset's content is shared and
// reports the new state.
func (s *Studio) ToggleAssetDisclosure(id string) (bool, error) {
	if _, err := s.reg.Get(id); err != nil {
		return false, fmt.Errorf("%w: asset %s", ErrNotFound, id)
	}
	return s.store.ToggleSelection(id), nil
}

// SelectConcept focuses a concept; an empty id clears the focus.
func (s *Studio) SelectConcept(id string) error {
	if id != "" {
		if _, ok := s.store.Concept(id); !ok {
			return fmt.Errorf("%w: concept %s", ErrNotFound, id)
		}
	}
	s.store.SetActiveConcept(id)
	return nil
}

// FinalizeConcept marks a concept final. Tech pack synthesis starts as soon
// as the studio is idle.
func (s *Studio) FinalizeConcept(id string) error {
	_, ok := s.store.UpdateConcept(id, func(c types.DesignConcept) (types.DesignConcept, bool) {
		if c.Finalized {
			return c, false
		}
		c.Finalized = true
		return c, true
	})
	if !ok {
		if _, exists := s.store.Concept(id); !exists {
			return fmt.Errorf("%w: concept %s", ErrNotFound, id)
		}
		return nil
	}
	if !s.Configured() {
		s.notice("Tech packs need model credentials; this concept stays without one for now.")
		return nil
	}
	s.kick()
	return nil
}

// OpenSpecification focuses a concept in the specification view and renders
// its technical flat in the background when it is missing or stale.
func (s *Studio) OpenSpecification(id string) error {
	c, ok := s.store.Concept(id)
	if !ok {
		return fmt.Errorf("%w: concept %s", ErrNotFound, id)
	}
	s.store.SetActiveConcept(id)
	if c.Images.Primary == nil || c.Pending.Has(types.RoleTechnical) {
		return nil
	}
	if c.Images.Technical != nil && !c.Stale(types.RoleTechnical) {
		return nil
	}
	s.track(func(ctx context.Context) {
		if _, err := s.derivs.Ensure(provider.WithStage(ctx, "studio.specification"), id, types.RoleTechnical); err != nil {
			s.log.Printf("studio: technical flat for %s: %v", id, err)
		}
		s.kick()
	})
	return nil
}

// ApplyEdit edits a concept's primary image. The call returns once the new
// primary is committed; both derivatives are regenerated from it in the
// background. A failed edit changes nothing.
func (s *Studio) ApplyEdit(ctx context.Context, req edit.Request) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	lease, err := s.gate.TryAcquire(types.StatusEditing)
	if err != nil {
		return err
	}
	cs, err := s.edits.Apply(ctx, req)
	lease.Release()
	if err != nil {
		var ro *edit.ReadOnlyError
		switch {
		case errors.As(err, &ro), errors.Is(err, edit.ErrEmptyInstruction),
			errors.Is(err, edit.ErrConceptNotFound), errors.Is(err, edit.ErrImageNotFound):
		case errors.Is(err, provider.ErrMissingCredentials):
			s.notice("Editing needs model credentials; the design was left unchanged.")
		default:
			s.log.Printf("studio: edit on %s failed: %v", req.ConceptID, err)
			s.notice("The edit could not be applied. The design was left unchanged.")
		}
		return err
	}
	s.track(func(ctx context.Context) {
		if err := s.edits.Propagate(ctx, cs); err != nil {
			s.notice("The illustration or technical flat could not be refreshed after your edit. Use refresh to try again.")
		}
		s.kick()
	})
	return nil
}

// RefreshDerivatives re-renders derivatives that are stale, plus the
// artistic derivative when it is missing. It recovers from a failed cascade.
func (s *Studio) RefreshDerivatives(ctx context.Context, id string) error {
	c, ok := s.store.Concept(id)
	if !ok {
		return fmt.Errorf("%w: concept %s", ErrNotFound, id)
	}
	if c.Images.Primary == nil {
		return pipeline.ErrNoPrimary
	}
	lease, err := s.gate.TryAcquire(types.StatusGenerating)
	if err != nil {
		return err
	}
	defer lease.Release()

	var errs []error
	for _, role := range []types.ImageRole{types.RoleArtistic, types.RoleTechnical} {
		if role == types.RoleTechnical && c.Images.Technical == nil {
			continue
		}
		if _, err := s.derivs.Ensure(provider.WithStage(ctx, "studio.refresh"), id, role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegenerateTechPack derives a fresh tech pack and replaces the current one.
func (s *Studio) RegenerateTechPack(ctx context.Context, id string) (types.TechPack, error) {
	if _, ok := s.store.Concept(id); !ok {
		return types.TechPack{}, fmt.Errorf("%w: concept %s", ErrNotFound, id)
	}
	lease, err := s.gate.TryAcquire(types.StatusAnalyzing)
	if err != nil {
		return types.TechPack{}, err
	}
	defer lease.Release()
	tp, err := s.packs.Regenerate(ctx, id)
	if err != nil {
		s.log.Printf("studio: tech pack regeneration for %s: %v", id, err)
		s.notice("The tech pack could not be regenerated.")
	}
	return tp, err
}

// Produce renders a runway photo or video and waits for it. CancelProduction
// or cancelling ctx abandons a running video job.
func (s *Studio) Produce(ctx context.Context, conceptID, scenario string, mode types.RunwayKind) (types.RunwayAsset, error) {
	lease, err := s.beginProduction(conceptID, mode)
	if err != nil {
		return types.RunwayAsset{}, err
	}
	return s.produce(ctx, lease, conceptID, scenario, mode)
}

// StartProduction is Produce without waiting; the result lands in the
// gallery.
func (s *Studio) StartProduction(conceptID, scenario string, mode types.RunwayKind) error {
	lease, err := s.beginProduction(conceptID, mode)
	if err != nil {
		return err
	}
	s.track(func(ctx context.Context) {
		_, _ = s.produce(ctx, lease, conceptID, scenario, mode)
	})
	return nil
}

// CancelProduction stops the running production, if any.
func (s *Studio) CancelProduction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopProducing == nil {
		return false
	}
	s.stopProducing()
	s.stopProducing = nil
	return true
}

func (s *Studio) beginProduction(conceptID string, mode types.RunwayKind) (*status.Lease, error) {
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if _, err := s.runway.Precheck(conceptID, mode); err != nil {
		return nil, err
	}
	return s.gate.TryAcquire(types.StatusProducing)
}

func (s *Studio) produce(ctx context.Context, lease *status.Lease, conceptID, scenario string, mode types.RunwayKind) (types.RunwayAsset, error) {
	defer lease.Release()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	s.mu.Lock()
	s.stopProducing = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stopProducing = nil
		s.mu.Unlock()
		cancel()
	}()

	asset, err := s.runway.Produce(ctx, conceptID, scenario, mode)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.notice("Runway production was cancelled.")
	case errors.Is(err, provider.ErrMissingCredentials):
		s.notice("Runway production needs model credentials.")
	default:
		s.log.Printf("studio: %s production for %s failed: %v", mode, conceptID, err)
		s.notice(fmt.Sprintf("The runway %s could not be produced.", mode))
	}
	return asset, err
}

// Media looks up the payload behind a /media/{id} path: concept images,
// gallery entries and uploaded assets.
func (s *Studio) Media(id string) (types.Blob, bool) {
	snap := s.store.Snapshot()
	for _, c := range snap.Concepts {
		if img := c.Images.Find(id); img != nil {
			return img.Media, true
		}
	}
	for _, g := range snap.Gallery {
		if g.ID == id {
			return g.Media, true
		}
	}
	if a, err := s.reg.Get(id); err == nil {
		return a.Payload, true
	}
	return types.Blob{}, false
}

// track runs fn on the studio's lifetime context and counts it for Wait.
func (s *Studio) track(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// kick starts tech pack synthesis for the next eligible concept if the studio
// is idle. It runs on every return to idle, after finalization and once
// background derivative renders settle.
func (s *Studio) kick() {
	if s.ctx.Err() != nil || !s.Configured() {
		return
	}
	c, ok := s.packs.Next(s.store.Snapshot())
	if !ok {
		return
	}
	lease, err := s.gate.TryAcquire(types.StatusAnalyzing)
	if err != nil {
		return
	}
	s.track(func(ctx context.Context) {
		defer lease.Release()
		if _, err := s.packs.Synthesize(ctx, c.ID); err != nil {
			s.log.Printf("studio: tech pack for %s: %v", c.ID, err)
			s.notice(fmt.Sprintf("The tech pack for %q could not be generated.", c.Name))
		}
	})
}

func (s *Studio) notice(text string) {
	s.store.AppendChat(message(types.RoleSystem, text, ""))
}

func message(role types.Role, text, note string) types.ChatMessage {
	return types.ChatMessage{
		ID:            uuid.NewString(),
		Role:          role,
		Text:          text,
		Timestamp:     time.Now().UTC(),
		ReasoningNote: note,
	}
}
