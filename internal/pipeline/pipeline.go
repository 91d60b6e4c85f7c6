// Package pipeline runs concept generation: a pair of concepts is allocated
// up front, then each concept renders its primary and, from that primary, its
// artistic derivative. The two concepts proceed concurrently and fail
// independently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"atelier/internal/llmtool"
	"atelier/internal/state"
	"atelier/internal/types"
)

type Pipeline struct {
	r     *Renderer
	d     *Derivatives
	store *state.Store
	log   *log.Logger
}

func New(r *Renderer, d *Derivatives, store *state.Store, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{r: r, d: d, store: store, log: logger}
}

// Generate installs the concept pair and blocks until every branch settles.
// The returned error joins branch failures; the concepts are returned either
// way and failed slots are left empty.
func (p *Pipeline) Generate(ctx context.Context, args llmtool.ConceptArgs) ([]types.DesignConcept, error) {
	briefs := args.Pair()
	concepts := make([]types.DesignConcept, len(briefs))
	for i, b := range briefs {
		concepts[i] = types.DesignConcept{
			ID:          uuid.NewString(),
			Name:        b.Name,
			Description: b.Description,
			Pending:     types.RoleSet(0).Add(types.RolePrimary).Add(types.RoleArtistic),
		}
	}
	p.store.ReplaceConcepts(concepts...)

	errs := make([]error, len(concepts))
	var g errgroup.Group
	for i := range concepts {
		i := i
		g.Go(func() error {
			errs[i] = p.branch(ctx, concepts[i].ID, briefs[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]types.DesignConcept, 0, len(concepts))
	for _, c := range concepts {
		if cur, ok := p.store.Concept(c.ID); ok {
			out = append(out, cur)
		}
	}
	return out, errors.Join(errs...)
}

func (p *Pipeline) branch(ctx context.Context, conceptID string, brief llmtool.ConceptBrief) error {
	blob, placeholder, err := p.r.Primary(ctx, brief)
	if err != nil {
		p.store.UpdateConcept(conceptID, func(c types.DesignConcept) (types.DesignConcept, bool) {
			c.Pending = 0
			return c, true
		})
		p.log.Printf("pipeline: primary for %q failed: %v", brief.Name, err)
		return fmt.Errorf("%s: primary: %w", brief.Name, err)
	}
	primary, ok := CommitPrimary(p.store, conceptID, blob, placeholder, types.RoleArtistic)
	if !ok {
		return nil
	}
	if _, err := p.d.Render(ctx, conceptID, types.RoleArtistic, primary, primary.SourceRevision); err != nil {
		p.log.Printf("pipeline: artistic for %q failed: %v", brief.Name, err)
		return fmt.Errorf("%s: artistic: %w", brief.Name, err)
	}
	return nil
}

// CommitPrimary overwrites the primary slot in place, keeping its id, and
// bumps the concept revision. It is the only place the source of truth
// changes. Pending is reset to the derivative roles the caller is about to
// render for the new revision. The returned image carries the new revision as
// SourceRevision.
func CommitPrimary(store *state.Store, conceptID string, blob types.Blob, placeholder bool, next ...types.ImageRole) (types.DesignImage, bool) {
	var img types.DesignImage
	_, ok := store.UpdateConcept(conceptID, func(c types.DesignConcept) (types.DesignConcept, bool) {
		c.Revision++
		id := uuid.NewString()
		if c.Images.Primary != nil {
			id = c.Images.Primary.ID
		}
		img = types.DesignImage{
			ID:             id,
			URL:            types.MediaURL(id, c.Revision),
			Role:           types.RolePrimary,
			ConceptID:      c.ID,
			Media:          blob,
			SourceRevision: c.Revision,
			Placeholder:    placeholder,
		}
		c.Images = c.Images.With(types.RolePrimary, &img)
		c.Pending = 0
		for _, role := range next {
			c.Pending = c.Pending.Add(role)
		}
		return c, true
	})
	return img, ok
}

// Ensure returns a current derivative for role, rendering it from the
// present primary when it is missing or stale.
func (d *Derivatives) Ensure(ctx context.Context, conceptID string, role types.ImageRole) (types.DesignImage, error) {
	c, ok := d.store.Concept(conceptID)
	if !ok {
		return types.DesignImage{}, fmt.Errorf("pipeline: concept %s not found", conceptID)
	}
	var err error
	if c.Pending.Has(role) {
		// Another render for this slot is in flight; reuse its result.
		if c, err = d.settle(ctx, conceptID, role, c.Revision); err != nil {
			return types.DesignImage{}, err
		}
	}
	if img := c.Images.Get(role); img != nil && !c.Stale(role) {
		return *img, nil
	}
	if c.Images.Primary == nil {
		return types.DesignImage{}, ErrNoPrimary
	}
	primary, rev := *c.Images.Primary, c.Revision
	d.MarkPending(conceptID, rev, role)
	committed, err := d.Render(ctx, conceptID, role, primary, rev)
	if err != nil {
		return types.DesignImage{}, err
	}
	c, _ = d.store.Concept(conceptID)
	img := c.Images.Get(role)
	if !committed || img == nil {
		return types.DesignImage{}, fmt.Errorf("pipeline: %s superseded by a newer primary", role)
	}
	return *img, nil
}

// settle blocks until role is no longer pending at rev, or the concept moves
// past rev, and returns the concept as it then stands.
func (d *Derivatives) settle(ctx context.Context, conceptID string, role types.ImageRole, rev int) (types.DesignConcept, error) {
	snaps, stop := d.store.Subscribe()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return types.DesignConcept{}, ctx.Err()
		case snap := <-snaps:
			c, ok := snap.Concept(conceptID)
			if !ok {
				return types.DesignConcept{}, fmt.Errorf("pipeline: concept %s not found", conceptID)
			}
			if c.Revision != rev || !c.Pending.Has(role) {
				return c, nil
			}
		}
	}
}
