package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/state"
	"atelier/internal/types"
)

var ErrNoPrimary = errors.New("pipeline: concept has no primary image")

// Renderer turns briefs and primaries into image blobs. Without credentials it
// hands back labeled placeholders instead of failing.
type Renderer struct {
	p          provider.Provider
	configured bool
}

func NewRenderer(p provider.Provider) *Renderer {
	return &Renderer{p: p, configured: provider.IsConfigured(p)}
}

func (r *Renderer) Configured() bool { return r.configured }

func (r *Renderer) Primary(ctx context.Context, brief llmtool.ConceptBrief) (types.Blob, bool, error) {
	if !r.configured {
		return types.PlaceholderImage(types.RolePrimary), true, nil
	}
	b, err := r.p.GenerateImage(provider.WithStage(ctx, "pipeline.primary"), primaryParts(brief))
	return b, false, err
}

func (r *Renderer) Derivative(ctx context.Context, role types.ImageRole, primary types.Blob) (types.Blob, bool, error) {
	if !role.Derived() {
		return types.Blob{}, false, fmt.Errorf("pipeline: %s is not a derivative role", role)
	}
	if !r.configured {
		return types.PlaceholderImage(role), true, nil
	}
	b, err := r.p.GenerateImage(provider.WithStage(ctx, "pipeline."+string(role)), derivativeParts(role, primary))
	return b, false, err
}

// Derivatives renders derivative slots from a given primary revision and
// commits each result only while that revision is still current. It is the
// single writer of derivative slots.
type Derivatives struct {
	r     *Renderer
	store *state.Store
	log   *log.Logger
}

func NewDerivatives(r *Renderer, store *state.Store, logger *log.Logger) *Derivatives {
	if logger == nil {
		logger = log.Default()
	}
	return &Derivatives{r: r, store: store, log: logger}
}

// MarkPending flags roles as in flight for rev. Stale results never clear a
// flag set for a newer revision.
func (d *Derivatives) MarkPending(conceptID string, rev int, roles ...types.ImageRole) {
	d.store.UpdateConcept(conceptID, func(c types.DesignConcept) (types.DesignConcept, bool) {
		if c.Revision != rev {
			return c, false
		}
		for _, role := range roles {
			c.Pending = c.Pending.Add(role)
		}
		return c, true
	})
}

// Render regenerates one derivative from primary (which must be the image
// committed at rev) and installs it. A result for a superseded revision is
// discarded and reported as committed=false without error.
func (d *Derivatives) Render(ctx context.Context, conceptID string, role types.ImageRole, primary types.DesignImage, rev int) (committed bool, err error) {
	if primary.Media.Empty() {
		d.clearPending(conceptID, role, rev)
		return false, ErrNoPrimary
	}
	blob, placeholder, err := d.r.Derivative(ctx, role, primary.Media)
	if err != nil {
		d.clearPending(conceptID, role, rev)
		return false, fmt.Errorf("pipeline: render %s: %w", role, err)
	}
	_, committed = d.store.UpdateConcept(conceptID, func(c types.DesignConcept) (types.DesignConcept, bool) {
		if c.Revision != rev {
			return c, false
		}
		id := uuid.NewString()
		if cur := c.Images.Get(role); cur != nil {
			id = cur.ID
		}
		c.Images = c.Images.With(role, &types.DesignImage{
			ID:             id,
			URL:            types.MediaURL(id, rev),
			Role:           role,
			ConceptID:      c.ID,
			Media:          blob,
			SourceRevision: rev,
			Placeholder:    placeholder,
		})
		c.Pending = c.Pending.Remove(role)
		return c, true
	})
	if !committed {
		d.log.Printf("pipeline: dropped %s for concept %s: revision %d superseded", role, conceptID, rev)
	}
	return committed, nil
}

func (d *Derivatives) clearPending(conceptID string, role types.ImageRole, rev int) {
	d.store.UpdateConcept(conceptID, func(c types.DesignConcept) (types.DesignConcept, bool) {
		if c.Revision != rev || !c.Pending.Has(role) {
			return c, false
		}
		c.Pending = c.Pending.Remove(role)
		return c, true
	})
}
