// Package state owns the observable session snapshot. Every mutation builds a
// new slice for whatever it changes and swaps it in under the lock, so a
// snapshot handed to a reader is never modified afterwards.
package state

import (
	"sync"

	"atelier/internal/types"
)

type Store struct {
	mu   sync.Mutex
	snap types.Snapshot

	subs    map[int]chan types.Snapshot
	nextSub int

	statusSeq uint64
}

// New starts a session whose chat opens with welcome.
func New(welcome types.ChatMessage) *Store {
	s := &Store{subs: map[int]chan types.Snapshot{}}
	s.snap.Status = types.StatusIdle
	if welcome.Text != "" {
		s.snap.Chat = []types.ChatMessage{welcome}
	}
	return s
}

func (s *Store) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe delivers the current snapshot and then every later one. Slow
// readers only ever see the latest; intermediate versions are dropped.
func (s *Store) Subscribe() (<-chan types.Snapshot, func()) {
	ch := make(chan types.Snapshot, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// commit bumps the version and fans out. s.mu must be held.
func (s *Store) commit() types.Snapshot {
	s.snap.Version++
	for _, ch := range s.subs {
		select {
		case ch <- s.snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s.snap
		}
	}
	return s.snap
}

// SetStatus publishes the gate state carried by transition seq. Updates with
// a seq at or below the last applied one are stale and ignored.
func (s *Store) SetStatus(st types.AgentStatus, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.statusSeq {
		return
	}
	s.statusSeq = seq
	if s.snap.Status == st {
		return
	}
	s.snap.Status = st
	s.commit()
}

func (s *Store) AppendChat(msg types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Chat = appendCopy(s.snap.Chat, msg)
	s.commit()
}

func (s *Store) AddAsset(ref types.AssetRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Assets = appendCopy(s.snap.Assets, ref)
	s.commit()
}

// ToggleSelection flips id in the sticky disclosure selection and reports
// whether it is now selected.
func (s *Store) ToggleSelection(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]string, 0, len(s.snap.SelectedAssetIDs)+1)
	found := false
	for _, cur := range s.snap.SelectedAssetIDs {
		if cur == id {
			found = true
			continue
		}
		next = append(next, cur)
	}
	if !found {
		next = append(next, id)
	}
	s.snap.SelectedAssetIDs = next
	assets := make([]types.AssetRef, len(s.snap.Assets))
	for i, a := range s.snap.Assets {
		if a.ID == id {
			a.Disclosed = !found
		}
		assets[i] = a
	}
	s.snap.Assets = assets
	s.commit()
	return !found
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snap.SelectedAssetIDs) == 0 {
		return
	}
	s.snap.SelectedAssetIDs = nil
	assets := make([]types.AssetRef, len(s.snap.Assets))
	for i, a := range s.snap.Assets {
		a.Disclosed = false
		assets[i] = a
	}
	s.snap.Assets = assets
	s.commit()
}

// ReplaceConcepts installs a new concept pair. Unfinalized concepts are
// dropped, finalized ones are kept, and the active selection is cleared.
func (s *Store) ReplaceConcepts(pair ...types.DesignConcept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]types.DesignConcept, 0, len(s.snap.Concepts)+len(pair))
	for _, c := range s.snap.Concepts {
		if c.Finalized {
			next = append(next, c)
		}
	}
	next = append(next, pair...)
	s.snap.Concepts = next
	s.snap.ActiveConceptID = ""
	s.commit()
}

// UpdateConcept applies fn to a copy of the concept and installs the result
// when fn reports a change. It returns the installed value.
func (s *Store) UpdateConcept(id string, fn func(c types.DesignConcept) (types.DesignConcept, bool)) (types.DesignConcept, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.snap.Concepts {
		if c.ID != id {
			continue
		}
		updated, changed := fn(c)
		if !changed {
			return c, false
		}
		next := make([]types.DesignConcept, len(s.snap.Concepts))
		copy(next, s.snap.Concepts)
		next[i] = updated
		s.snap.Concepts = next
		s.commit()
		return updated, true
	}
	return types.DesignConcept{}, false
}

func (s *Store) Concept(id string) (types.DesignConcept, bool) {
	return s.Snapshot().Concept(id)
}

func (s *Store) SetActiveConcept(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.ActiveConceptID == id {
		return
	}
	s.snap.ActiveConceptID = id
	s.commit()
}

// PrependGallery keeps the gallery most-recent-first.
func (s *Store) PrependGallery(a types.RunwayAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]types.RunwayAsset, 0, len(s.snap.Gallery)+1)
	next = append(next, a)
	next = append(next, s.snap.Gallery...)
	s.snap.Gallery = next
	s.commit()
}

func appendCopy[T any](in []T, v T) []T {
	out := make([]T, len(in), len(in)+1)
	copy(out, in)
	return append(out, v)
}
