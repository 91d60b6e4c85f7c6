// Package runway renders finalized concepts into new scenes, as a still photo
// or a generated video, and appends the result to the gallery. Gallery
// entries are snapshots and are never updated when the concept changes.
package runway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"atelier/internal/provider"
	"atelier/internal/state"
	"atelier/internal/types"
)

var (
	ErrNoPrimary    = errors.New("runway: concept has no primary image")
	ErrNotFound     = errors.New("runway: concept not found")
	ErrUnknownMode  = errors.New("runway: unknown production mode")
	ErrPollDeadline = errors.New("runway: video job did not finish in time")
)

const promptPhoto = `Editorial fashion photograph. The model wears exactly the garment shown in this image, unchanged in cut, colour and detail.
Scene: %s.
Natural pose, full-length framing, professional lighting.`

const promptVideo = `Fashion film. The model wears exactly the garment shown in this image and walks toward the camera.
Scene: %s.
Smooth cinematic motion, the garment stays identical in cut, colour and detail.`

type Options struct {
	Logger       *log.Logger
	PollInterval time.Duration
	MaxWait      time.Duration
	Video        provider.VideoConfig
	Catalog      *Catalog
}

type Renderer struct {
	p     provider.Provider
	store *state.Store
	log   *log.Logger
	opts  Options
}

func New(p provider.Provider, store *state.Store, o Options) *Renderer {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Minute
	}
	if o.Video.AspectRatio == "" {
		o.Video.AspectRatio = "9:16"
	}
	if o.Catalog == nil {
		o.Catalog = DefaultCatalog()
	}
	return &Renderer{p: p, store: store, log: o.Logger, opts: o}
}

func (r *Renderer) Catalog() *Catalog { return r.opts.Catalog }

// Precheck validates the request against current state without side effects.
func (r *Renderer) Precheck(conceptID string, mode types.RunwayKind) (types.DesignConcept, error) {
	if mode != types.RunwayPhoto && mode != types.RunwayVideo {
		return types.DesignConcept{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	c, ok := r.store.Concept(conceptID)
	if !ok {
		return types.DesignConcept{}, fmt.Errorf("%w: %s", ErrNotFound, conceptID)
	}
	if c.Images.Primary == nil || c.Images.Primary.Media.Empty() {
		return types.DesignConcept{}, ErrNoPrimary
	}
	return c, nil
}

// Produce renders the concept's current primary into the scenario and
// prepends the result to the gallery. The gallery is untouched on failure.
func (r *Renderer) Produce(ctx context.Context, conceptID, scenario string, mode types.RunwayKind) (types.RunwayAsset, error) {
	c, err := r.Precheck(conceptID, mode)
	if err != nil {
		return types.RunwayAsset{}, err
	}
	if !provider.IsConfigured(r.p) {
		return types.RunwayAsset{}, provider.ErrMissingCredentials
	}
	sc := r.opts.Catalog.Resolve(scenario)
	primary := c.Images.Primary.Media

	var media types.Blob
	switch mode {
	case types.RunwayPhoto:
		media, err = r.p.GenerateImage(provider.WithStage(ctx, "runway.photo"),
			[]provider.Part{provider.MediaPart(primary), provider.TextPart(fmt.Sprintf(promptPhoto, sc.Prompt))})
	case types.RunwayVideo:
		media, err = r.video(ctx, primary, fmt.Sprintf(promptVideo, sc.Prompt))
	}
	if err != nil {
		return types.RunwayAsset{}, fmt.Errorf("runway: %s: %w", mode, err)
	}
	if media.Empty() {
		return types.RunwayAsset{}, fmt.Errorf("runway: %s: %w", mode, provider.ErrEmptyResponse)
	}

	id := uuid.NewString()
	asset := types.RunwayAsset{
		ID:              id,
		Kind:            mode,
		URL:             types.MediaURL(id, 1),
		Media:           media,
		SourceConceptID: c.ID,
		ScenarioLabel:   sc.Label,
		CreatedAt:       time.Now().UTC(),
	}
	r.store.PrependGallery(asset)
	return asset, nil
}

// video submits the job and polls at a fixed interval until it is done, the
// context is cancelled or MaxWait elapses. The result is fetched exactly once.
func (r *Renderer) video(ctx context.Context, image types.Blob, prompt string) (types.Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.MaxWait)
	defer cancel()

	job, err := r.p.StartVideoJob(provider.WithStage(ctx, "runway.video.start"), image, prompt, r.opts.Video)
	if err != nil {
		return types.Blob{}, err
	}
	r.log.Printf("runway: video job %s started", job.ID)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	pollCtx := provider.WithStage(ctx, "runway.video.poll")
	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return types.Blob{}, fmt.Errorf("%w after %s (job %s)", ErrPollDeadline, r.opts.MaxWait, job.ID)
			}
			return types.Blob{}, ctx.Err()
		case <-ticker.C:
		}
		st, err := r.p.PollJob(pollCtx, job)
		if err != nil {
			return types.Blob{}, err
		}
		if !st.Done {
			continue
		}
		r.log.Printf("runway: video job %s done after %d polls", job.ID, polls)
		if st.ResultRef == "" {
			return types.Blob{}, provider.ErrJobFailed
		}
		return r.p.FetchResult(provider.WithStage(ctx, "runway.video.fetch"), st.ResultRef)
	}
}
