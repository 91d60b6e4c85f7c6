// Package registry holds uploaded inspiration assets for the process
// lifetime. Assets are immutable once added; disclosure is tracked by the
// caller, never on the asset itself.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"atelier/internal/types"
)

var (
	ErrNotFound     = errors.New("registry: asset not found")
	ErrEmptyPayload = errors.New("registry: empty payload")
)

type Registry struct {
	mu     sync.RWMutex
	order  []string
	assets map[string]types.InspirationAsset
}

func New() *Registry {
	return &Registry{assets: map[string]types.InspirationAsset{}}
}

// Add registers a new asset. The kind is inferred from the MIME type and the
// display name falls back to the id when blank.
func (r *Registry) Add(payload types.Blob, name string) (types.InspirationAsset, error) {
	if payload.Empty() {
		return types.InspirationAsset{}, ErrEmptyPayload
	}
	a := types.InspirationAsset{
		ID:          uuid.NewString(),
		Kind:        types.KindFromMIME(payload.MIMEType),
		MIMEType:    payload.MIMEType,
		Payload:     types.Blob{MIMEType: payload.MIMEType, Data: append([]byte(nil), payload.Data...)},
		DisplayName: strings.TrimSpace(name),
	}
	if a.DisplayName == "" {
		a.DisplayName = a.ID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = a
	r.order = append(r.order, a.ID)
	return a, nil
}

func (r *Registry) Get(id string) (types.InspirationAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	if !ok {
		return types.InspirationAsset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Resolve looks a model-supplied reference up by id, then by display name
// (exact, then case-insensitive). Models routinely echo names instead of ids.
func (r *Registry) Resolve(ref string) (types.InspirationAsset, error) {
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.assets[ref]; ok {
		return a, nil
	}
	var fold *types.InspirationAsset
	for _, id := range r.order {
		a := r.assets[id]
		if a.DisplayName == ref {
			return a, nil
		}
		if fold == nil && strings.EqualFold(a.DisplayName, ref) {
			fold = &a
		}
	}
	if fold != nil {
		return *fold, nil
	}
	return types.InspirationAsset{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// All returns assets in upload order.
func (r *Registry) All() []types.InspirationAsset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.InspirationAsset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.assets[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Manifest lists every asset as metadata only, marking those in disclosed.
func (r *Registry) Manifest(disclosed []string) []types.AssetRef {
	set := make(map[string]bool, len(disclosed))
	for _, id := range disclosed {
		set[id] = true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AssetRef, 0, len(r.order))
	for _, id := range r.order {
		a := r.assets[id]
		out = append(out, types.AssetRef{ID: a.ID, DisplayName: a.DisplayName, Kind: a.Kind, Disclosed: set[a.ID]})
	}
	return out
}
