package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/provider/fake"
	"atelier/internal/state"
	"atelier/internal/types"
)

func newPipeline(p provider.Provider) (*Pipeline, *Derivatives, *state.Store) {
	store := state.New(types.ChatMessage{})
	logger := log.New(io.Discard, "", 0)
	r := NewRenderer(p)
	d := NewDerivatives(r, store, logger)
	return New(r, d, store, logger), d, store
}

var gothic = llmtool.ConceptArgs{
	First:  llmtool.ConceptBrief{Name: "Gothic Bloom", Description: "black lace gown"},
	Second: llmtool.ConceptBrief{Name: "Crypt Tailor", Description: "velvet frock coat"},
}

func TestGenerate_RendersPrimaryThenArtisticFromPrimary(t *testing.T) {
	fp := fake.New()
	pl, _, store := newPipeline(fp)

	concepts, err := pl.Generate(context.Background(), gothic)
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, 4, fp.Count(provider.OpGenerateImage))

	calls := fp.CallsFor(provider.OpGenerateImage)
	for _, c := range concepts {
		require.NotNil(t, c.Images.Primary)
		require.NotNil(t, c.Images.Artistic)
		assert.Nil(t, c.Images.Technical, "technical is rendered lazily")
		assert.Equal(t, 1, c.Revision)
		assert.Equal(t, c.Revision, c.Images.Artistic.SourceRevision)
		assert.Zero(t, c.Pending)

		primaryAt, artisticAt := -1, -1
		for i, call := range calls {
			parts := call.Request.(fake.ImageRequest).Parts
			switch {
			case !parts[0].IsMedia() && strings.Contains(parts[0].Text, c.Name):
				primaryAt = i
			case parts[0].IsMedia() && bytes.Equal(parts[0].Media.Data, c.Images.Primary.Media.Data):
				artisticAt = i
			}
		}
		require.GreaterOrEqual(t, primaryAt, 0)
		require.GreaterOrEqual(t, artisticAt, 0, "artistic must be conditioned on the primary image")
		assert.Less(t, primaryAt, artisticAt)
		assert.NotContains(t, calls[artisticAt].Request.(fake.ImageRequest).Parts[1].Text, c.Description)
	}

	snap := store.Snapshot()
	assert.Len(t, snap.Concepts, 2)
	assert.Empty(t, snap.ActiveConceptID)
}

func TestGenerate_IsolatesBranchFailure(t *testing.T) {
	fp := fake.New()
	fp.OnGenerateImage = func(_ context.Context, parts []provider.Part) (types.Blob, error) {
		if !parts[0].IsMedia() && strings.Contains(parts[0].Text, "Crypt Tailor") {
			return types.Blob{}, errors.New("quota exceeded")
		}
		return fake.Image(7), nil
	}
	pl, _, _ := newPipeline(fp)

	concepts, err := pl.Generate(context.Background(), gothic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Crypt Tailor")
	require.Len(t, concepts, 2)

	byName := map[string]types.DesignConcept{}
	for _, c := range concepts {
		byName[c.Name] = c
	}
	ok := byName["Gothic Bloom"]
	assert.NotNil(t, ok.Images.Primary)
	assert.NotNil(t, ok.Images.Artistic)

	failed := byName["Crypt Tailor"]
	assert.Nil(t, failed.Images.Primary)
	assert.Nil(t, failed.Images.Artistic)
	assert.Zero(t, failed.Pending)
}

func TestGenerate_ArtisticFailureLeavesSlotEmpty(t *testing.T) {
	fp := fake.New()
	fp.OnGenerateImage = func(_ context.Context, parts []provider.Part) (types.Blob, error) {
		if parts[0].IsMedia() {
			return types.Blob{}, provider.ErrNoImage
		}
		return fake.Image(1), nil
	}
	pl, _, _ := newPipeline(fp)

	concepts, err := pl.Generate(context.Background(), gothic)
	assert.ErrorIs(t, err, provider.ErrNoImage)
	for _, c := range concepts {
		assert.NotNil(t, c.Images.Primary)
		assert.Nil(t, c.Images.Artistic)
		assert.False(t, c.Pending.Has(types.RoleArtistic))
	}
}

func TestGenerate_UnconfiguredUsesPlaceholders(t *testing.T) {
	pl, _, _ := newPipeline(provider.Unconfigured{})
	concepts, err := pl.Generate(context.Background(), llmtool.DecodeConceptArgs(nil))
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, llmtool.DefaultConcept1Name, concepts[0].Name)
	for _, c := range concepts {
		assert.True(t, c.Images.Primary.Placeholder)
		assert.True(t, c.Images.Artistic.Placeholder)
	}
}

func TestEnsure_RendersTechnicalOnce(t *testing.T) {
	fp := fake.New()
	pl, d, _ := newPipeline(fp)
	concepts, err := pl.Generate(context.Background(), gothic)
	require.NoError(t, err)
	before := fp.Count(provider.OpGenerateImage)

	img, err := d.Ensure(context.Background(), concepts[0].ID, types.RoleTechnical)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTechnical, img.Role)
	assert.Equal(t, before+1, fp.Count(provider.OpGenerateImage))

	again, err := d.Ensure(context.Background(), concepts[0].ID, types.RoleTechnical)
	require.NoError(t, err)
	assert.Equal(t, img.ID, again.ID)
	assert.Equal(t, before+1, fp.Count(provider.OpGenerateImage))
}

func TestEnsure_WaitsForInFlightRender(t *testing.T) {
	fp := fake.New()
	pl, d, _ := newPipeline(fp)
	concepts, err := pl.Generate(context.Background(), gothic)
	require.NoError(t, err)
	c := concepts[0]
	d.MarkPending(c.ID, c.Revision, types.RoleTechnical)
	before := fp.Count(provider.OpGenerateImage)

	type result struct {
		img types.DesignImage
		err error
	}
	done := make(chan result, 1)
	go func() {
		img, err := d.Ensure(context.Background(), c.ID, types.RoleTechnical)
		done <- result{img, err}
	}()

	select {
	case <-done:
		t.Fatal("Ensure returned while the technical flat was still rendering")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, before, fp.Count(provider.OpGenerateImage))

	committed, err := d.Render(context.Background(), c.ID, types.RoleTechnical, *c.Images.Primary, c.Revision)
	require.NoError(t, err)
	require.True(t, committed)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, types.RoleTechnical, res.img.Role)
	assert.Equal(t, before+1, fp.Count(provider.OpGenerateImage))
}

func TestEnsure_WaitHonoursContext(t *testing.T) {
	pl, d, _ := newPipeline(fake.New())
	concepts, err := pl.Generate(context.Background(), gothic)
	require.NoError(t, err)
	d.MarkPending(concepts[0].ID, concepts[0].Revision, types.RoleTechnical)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = d.Ensure(ctx, concepts[0].ID, types.RoleTechnical)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDerivatives_DropsSupersededRevision(t *testing.T) {
	fp := fake.New()
	pl, d, store := newPipeline(fp)
	concepts, err := pl.Generate(context.Background(), gothic)
	require.NoError(t, err)
	c := concepts[0]
	oldPrimary := *c.Images.Primary

	d.MarkPending(c.ID, c.Revision, types.RoleTechnical)
	_, ok := CommitPrimary(store, c.ID, fake.Image(99), false)
	require.True(t, ok)

	committed, err := d.Render(context.Background(), c.ID, types.RoleTechnical, oldPrimary, c.Revision)
	require.NoError(t, err)
	assert.False(t, committed)

	cur, _ := store.Concept(c.ID)
	assert.Nil(t, cur.Images.Technical)
	assert.Zero(t, cur.Pending, "a new primary resets in-flight flags")
	assert.Equal(t, c.Images.Primary.ID, cur.Images.Primary.ID, "primary keeps its slot id")
	assert.Equal(t, 2, cur.Revision)
	assert.True(t, cur.Stale(types.RoleArtistic))
}
