// Package edit applies localized, mask-guided edits to a concept's primary
// image and cascades regeneration to the derivatives defined from it.
package edit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"atelier/internal/pipeline"
	"atelier/internal/provider"
	"atelier/internal/state"
	"atelier/internal/types"
)

var (
	ErrEmptyInstruction = errors.New("edit: instruction is empty")
	ErrConceptNotFound  = errors.New("edit: concept not found")
	ErrImageNotFound    = errors.New("edit: image not found on concept")
)

// ReadOnlyError rejects an edit aimed at a derivative and names the primary
// the user should edit instead.
type ReadOnlyError struct {
	Role           types.ImageRole
	PrimaryImageID string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("edit: %s images are derived and read-only; edit primary image %s instead", e.Role, e.PrimaryImageID)
}

const promptEdit = `Edit this fashion design: %s.
The area marked with red strokes is the region to change. Change only that region, following the instruction.
Remove every red marking from the output. Keep the rest of the design exactly the same.`

type Request struct {
	ConceptID   string
	ImageID     string
	Instruction string
	// Mask is a transparent overlay carrying the marker strokes. It is
	// composited over the current primary.
	Mask types.Blob
	// Composite, when set, is an already flattened primary+mask image and
	// Mask is ignored.
	Composite types.Blob
}

// Cascade identifies the derivative regeneration owed after an edit.
type Cascade struct {
	ConceptID string
	Primary   types.DesignImage
	Revision  int
}

type Engine struct {
	p     provider.Provider
	store *state.Store
	d     *pipeline.Derivatives
	log   *log.Logger
}

func New(p provider.Provider, store *state.Store, d *pipeline.Derivatives, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{p: p, store: store, d: d, log: logger}
}

// Validate checks the request against current state without side effects.
func (e *Engine) Validate(req Request) (types.DesignConcept, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return types.DesignConcept{}, ErrEmptyInstruction
	}
	c, ok := e.store.Concept(req.ConceptID)
	if !ok {
		return types.DesignConcept{}, fmt.Errorf("%w: %s", ErrConceptNotFound, req.ConceptID)
	}
	img := c.Images.Find(req.ImageID)
	if img == nil {
		return types.DesignConcept{}, fmt.Errorf("%w: %s", ErrImageNotFound, req.ImageID)
	}
	if img.Role != types.RolePrimary {
		primaryID := ""
		if c.Images.Primary != nil {
			primaryID = c.Images.Primary.ID
		}
		return types.DesignConcept{}, &ReadOnlyError{Role: img.Role, PrimaryImageID: primaryID}
	}
	return c, nil
}

// Apply runs the edit and commits the new primary. Nothing is mutated unless
// the edit call succeeds. The returned Cascade must be passed to Propagate.
func (e *Engine) Apply(ctx context.Context, req Request) (Cascade, error) {
	c, err := e.Validate(req)
	if err != nil {
		return Cascade{}, err
	}
	if !provider.IsConfigured(e.p) {
		return Cascade{}, provider.ErrMissingCredentials
	}
	payload := req.Composite
	if payload.Empty() {
		payload = c.Images.Primary.Media
		if !req.Mask.Empty() {
			if payload, err = Composite(payload, req.Mask); err != nil {
				return Cascade{}, err
			}
		}
	}
	out, err := e.p.EditImage(provider.WithStage(ctx, "edit.primary"), payload, fmt.Sprintf(promptEdit, strings.TrimSpace(req.Instruction)))
	if err != nil {
		return Cascade{}, fmt.Errorf("edit: %w", err)
	}
	if out.Empty() {
		return Cascade{}, fmt.Errorf("edit: %w", provider.ErrNoImage)
	}
	primary, ok := pipeline.CommitPrimary(e.store, c.ID, out, false, types.RoleArtistic, types.RoleTechnical)
	if !ok {
		return Cascade{}, fmt.Errorf("%w: %s", ErrConceptNotFound, c.ID)
	}
	e.log.Printf("edit: concept %s primary now at revision %d", c.ID, primary.SourceRevision)
	return Cascade{ConceptID: c.ID, Primary: primary, Revision: primary.SourceRevision}, nil
}

// Propagate regenerates both derivatives from the committed primary. The two
// renders run concurrently and each writes only its own slot; results for a
// superseded revision are discarded.
func (e *Engine) Propagate(ctx context.Context, cs Cascade) error {
	roles := []types.ImageRole{types.RoleArtistic, types.RoleTechnical}
	errs := make([]error, len(roles))
	var g errgroup.Group
	for i, role := range roles {
		i, role := i, role
		g.Go(func() error {
			ctx := provider.WithStage(ctx, "edit.cascade")
			if _, err := e.d.Render(ctx, cs.ConceptID, role, cs.Primary, cs.Revision); err != nil {
				e.log.Printf("edit: cascade %s for concept %s failed: %v", role, cs.ConceptID, err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
