// Package techpack derives a structured specification (bill of materials,
// measurements, construction notes, cost) from a finalized concept's imagery
// and enriches it with grounded sourcing results for the main fabric.
package techpack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"atelier/internal/pipeline"
	"atelier/internal/provider"
	"atelier/internal/state"
	"atelier/internal/types"
)

const MaxSourcingResults = 5

var ErrConceptNotFound = errors.New("techpack: concept not found")

type Options struct {
	Logger    *log.Logger
	CacheSize int
	CacheTTL  time.Duration
}

type Synthesizer struct {
	p     provider.Provider
	store *state.Store
	d     *pipeline.Derivatives
	log   *log.Logger
	cache *expirable.LRU[string, []types.SourcingResult]

	mu        sync.Mutex
	attempted map[string]int
}

func New(p provider.Provider, store *state.Store, d *pipeline.Derivatives, o Options) *Synthesizer {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 128
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	return &Synthesizer{
		p:         p,
		store:     store,
		d:         d,
		log:       o.Logger,
		cache:     expirable.NewLRU[string, []types.SourcingResult](o.CacheSize, nil, o.CacheTTL),
		attempted: map[string]int{},
	}
}

// Eligible is the automatic trigger condition.
func Eligible(c types.DesignConcept) bool {
	return c.Finalized && c.Images.Primary != nil && c.TechPack == nil
}

// Next returns the first eligible concept that has not already been tried at
// its current revision, so a failed synthesis is not retried in a loop.
// Concepts with derivatives still rendering wait for them to settle.
func (s *Synthesizer) Next(snap types.Snapshot) (types.DesignConcept, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range snap.Concepts {
		if !Eligible(c) || c.Pending != 0 {
			continue
		}
		if rev, ok := s.attempted[c.ID]; ok && rev == c.Revision {
			continue
		}
		return c, true
	}
	return types.DesignConcept{}, false
}

// Synthesize returns the concept's tech pack, deriving it first if absent.
// A concept that already has one costs no provider call.
func (s *Synthesizer) Synthesize(ctx context.Context, conceptID string) (types.TechPack, error) {
	return s.run(ctx, conceptID, false)
}

// Regenerate derives a fresh pack and replaces the existing one whole.
func (s *Synthesizer) Regenerate(ctx context.Context, conceptID string) (types.TechPack, error) {
	return s.run(ctx, conceptID, true)
}

func (s *Synthesizer) run(ctx context.Context, conceptID string, overwrite bool) (types.TechPack, error) {
	c, ok := s.store.Concept(conceptID)
	if !ok {
		return types.TechPack{}, fmt.Errorf("%w: %s", ErrConceptNotFound, conceptID)
	}
	if c.TechPack != nil && !overwrite {
		return *c.TechPack, nil
	}
	if c.Images.Primary == nil {
		return types.TechPack{}, pipeline.ErrNoPrimary
	}
	if !provider.IsConfigured(s.p) {
		return types.TechPack{}, provider.ErrMissingCredentials
	}
	s.mu.Lock()
	s.attempted[c.ID] = c.Revision
	s.mu.Unlock()

	var technical types.Blob
	if img, err := s.d.Ensure(ctx, c.ID, types.RoleTechnical); err != nil {
		s.log.Printf("techpack: technical flat for %s unavailable, using primary only: %v", c.ID, err)
	} else {
		technical = img.Media
	}

	req, err := request(c, c.Images.Primary.Media, technical)
	if err != nil {
		return types.TechPack{}, err
	}
	raw, err := s.p.CompleteStructured(provider.WithStage(ctx, "techpack.synthesize"), req)
	if err != nil {
		return types.TechPack{}, fmt.Errorf("techpack: synthesize: %w", err)
	}
	tp, err := decode(raw)
	if err != nil {
		return types.TechPack{}, fmt.Errorf("techpack: %w", err)
	}
	tp.SourceRevision = c.Revision

	committed := &tp
	_, ok = s.store.UpdateConcept(c.ID, func(cur types.DesignConcept) (types.DesignConcept, bool) {
		if cur.TechPack != nil && !overwrite {
			committed = cur.TechPack
			return cur, false
		}
		cur.TechPack = committed
		return cur, true
	})
	if !ok {
		if committed != &tp {
			return *committed, nil
		}
		return types.TechPack{}, fmt.Errorf("%w: %s", ErrConceptNotFound, c.ID)
	}
	s.log.Printf("techpack: %s committed (%d BOM rows, %d measurements)", c.ID, len(tp.BOM), len(tp.Measurements))

	return s.source(ctx, c.ID, committed), nil
}

// source appends grounded supplier results for the main fabric. It never
// fails the synthesis; a missing main fabric row skips it silently.
func (s *Synthesizer) source(ctx context.Context, conceptID string, tp *types.TechPack) types.TechPack {
	fabric, ok := MainFabric(tp.BOM)
	if !ok {
		return *tp
	}
	results, err := s.Search(ctx, SourcingQuery(fabric))
	if err != nil {
		s.log.Printf("techpack: sourcing for %s failed: %v", conceptID, err)
		return *tp
	}
	if len(results) == 0 {
		return *tp
	}
	out := *tp
	s.store.UpdateConcept(conceptID, func(cur types.DesignConcept) (types.DesignConcept, bool) {
		if cur.TechPack != tp {
			return cur, false
		}
		cur.TechPack = tp.WithSourcing(results...)
		out = *cur.TechPack
		return cur, true
	})
	return out
}

// Search runs a grounded search through the cache and keeps at most
// MaxSourcingResults distinct URLs.
func (s *Synthesizer) Search(ctx context.Context, query string) ([]types.SourcingResult, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if hit, ok := s.cache.Get(key); ok {
		return hit, nil
	}
	raw, err := s.p.GroundedSearch(provider.WithStage(ctx, "techpack.sourcing"), query)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]types.SourcingResult, 0, MaxSourcingResults)
	for _, r := range raw {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		if strings.TrimSpace(r.Title) == "" {
			r.Title = r.URL
		}
		out = append(out, r)
		if len(out) == MaxSourcingResults {
			break
		}
	}
	s.cache.Add(key, out)
	return out, nil
}
