package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/types"
)

func TestStore_SnapshotsAreNeverMutated(t *testing.T) {
	s := New(types.ChatMessage{ID: types.WelcomeMessageID, Role: types.RoleSystem, Text: "hi"})
	before := s.Snapshot()
	s.AppendChat(types.ChatMessage{ID: "m1", Role: types.RoleUser, Text: "hello"})
	s.ReplaceConcepts(types.DesignConcept{ID: "c1"}, types.DesignConcept{ID: "c2"})
	s.UpdateConcept("c1", func(c types.DesignConcept) (types.DesignConcept, bool) {
		c.Name = "Noir"
		return c, true
	})

	assert.Len(t, before.Chat, 1)
	assert.Empty(t, before.Concepts)
	after := s.Snapshot()
	assert.Len(t, after.Chat, 2)
	c, ok := after.Concept("c1")
	require.True(t, ok)
	assert.Equal(t, "Noir", c.Name)
	assert.Greater(t, after.Version, before.Version)
}

func TestStore_ReplaceConceptsKeepsFinalized(t *testing.T) {
	s := New(types.ChatMessage{})
	s.ReplaceConcepts(types.DesignConcept{ID: "a"}, types.DesignConcept{ID: "b"})
	s.UpdateConcept("a", func(c types.DesignConcept) (types.DesignConcept, bool) {
		c.Finalized = true
		return c, true
	})
	s.SetActiveConcept("a")
	s.ReplaceConcepts(types.DesignConcept{ID: "c"}, types.DesignConcept{ID: "d"})

	snap := s.Snapshot()
	var ids []string
	for _, c := range snap.Concepts {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
	assert.Empty(t, snap.ActiveConceptID)
}

func TestStore_UpdateConceptNoChangeDoesNotBump(t *testing.T) {
	s := New(types.ChatMessage{})
	s.ReplaceConcepts(types.DesignConcept{ID: "a"})
	v := s.Snapshot().Version
	_, changed := s.UpdateConcept("a", func(c types.DesignConcept) (types.DesignConcept, bool) { return c, false })
	assert.False(t, changed)
	_, changed = s.UpdateConcept("missing", func(c types.DesignConcept) (types.DesignConcept, bool) { return c, true })
	assert.False(t, changed)
	assert.Equal(t, v, s.Snapshot().Version)
}

func TestStore_ToggleSelectionMirrorsAssets(t *testing.T) {
	s := New(types.ChatMessage{})
	s.AddAsset(types.AssetRef{ID: "x", DisplayName: "ref.png", Kind: types.AssetImage})
	assert.True(t, s.ToggleSelection("x"))
	snap := s.Snapshot()
	assert.Equal(t, []string{"x"}, snap.SelectedAssetIDs)
	assert.True(t, snap.Assets[0].Disclosed)

	assert.False(t, s.ToggleSelection("x"))
	assert.Empty(t, s.Snapshot().SelectedAssetIDs)
	assert.False(t, s.Snapshot().Assets[0].Disclosed)
}

func TestStore_SubscribeIsLatestWins(t *testing.T) {
	s := New(types.ChatMessage{})
	ch, cancel := s.Subscribe()
	defer cancel()
	first := <-ch
	s.SetStatus(types.StatusThinking, 1)
	s.SetStatus(types.StatusIdle, 2)
	s.PrependGallery(types.RunwayAsset{ID: "r1"})
	s.PrependGallery(types.RunwayAsset{ID: "r2"})

	latest := <-ch
	assert.Equal(t, first.Version+4, latest.Version)
	require.Len(t, latest.Gallery, 2)
	assert.Equal(t, "r2", latest.Gallery[0].ID)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestStore_SetStatusDropsStaleTransitions(t *testing.T) {
	s := New(types.ChatMessage{})
	s.SetStatus(types.StatusGenerating, 1)
	s.SetStatus(types.StatusThinking, 3)
	v := s.Snapshot().Version

	// The idle from transition 2 arrives after transition 3 was published.
	s.SetStatus(types.StatusIdle, 2)
	s.SetStatus(types.StatusIdle, 3)

	snap := s.Snapshot()
	assert.Equal(t, types.StatusThinking, snap.Status)
	assert.Equal(t, v, snap.Version)
}
