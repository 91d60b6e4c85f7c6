package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/controller"
	"atelier/internal/edit"
	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/provider/fake"
	"atelier/internal/runway"
	"atelier/internal/status"
	"atelier/internal/types"
)

const silkPack = `{
  "styleNumber": "AT-FW27-014",
  "season": "FW27",
  "bom": [
    {"location": "Collar Trim", "item": "Velvet Ribbon", "description": "6mm", "quantity": "1 yd", "costEstimate": 2},
    {"location": "Body", "item": "Silk Crepe", "description": "heavy 4-ply", "quantity": "3 yd", "costEstimate": 54}
  ],
  "measurements": [{"pointOfMeasure": "Center Back Length", "value": "58", "unit": "in", "tolerance": "0.5"}],
  "constructionNotes": ["Hand-rolled hems"],
  "totalCostEstimate": 56
}`

var gothic = llmtool.ConceptArgs{
	First:  llmtool.ConceptBrief{Name: "Gothic Bloom", Description: "black lace column gown"},
	Second: llmtool.ConceptBrief{Name: "Crypt Tailor", Description: "velvet frock coat"},
}

func newStudio(t *testing.T, p provider.Provider, o Options) *Studio {
	t.Helper()
	o.Logger = log.New(io.Discard, "", 0)
	if o.Runway.PollInterval == 0 {
		o.Runway.PollInterval = time.Millisecond
	}
	s := New(p, o)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// withConcepts renders the gothic pair and waits for it.
func withConcepts(t *testing.T, s *Studio) []types.DesignConcept {
	t.Helper()
	require.NoError(t, s.GenerateConcepts(gothic))
	s.Wait()
	snap := s.Snapshot()
	require.Len(t, snap.Concepts, 2)
	return snap.Concepts
}

func lastChat(s *Studio) types.ChatMessage {
	chat := s.Snapshot().Chat
	return chat[len(chat)-1]
}

func TestNew_StartsIdleWithWelcome(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	snap := s.Snapshot()
	assert.Equal(t, types.StatusIdle, snap.Status)
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, types.WelcomeMessageID, snap.Chat[0].ID)
	assert.Equal(t, DefaultWelcome, snap.Chat[0].Text)
}

func TestSendMessage_GothicReferenceScenario(t *testing.T) {
	fp := fake.New().Script(
		provider.Completion{ToolCalls: []provider.ToolCall{{Name: llmtool.ToolViewAssets, Args: map[string]any{"asset_ids": []any{"ref.png"}}}}},
		provider.Completion{Text: "Here are two gothic takes.", ToolCalls: []provider.ToolCall{{
			Name: llmtool.ToolGenerateConcepts,
			Args: map[string]any{
				"concept1_name": "Gothic Bloom", "concept1_description": "black lace column gown",
				"concept2_name": "Crypt Tailor", "concept2_description": "velvet frock coat",
			},
		}}},
	)
	s := newStudio(t, fp, Options{ManualDisclosure: true})
	ref, err := s.UploadAsset(types.Blob{MIMEType: "image/png", Data: fake.Image(7).Data}, "ref.png")
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().SelectedAssetIDs)

	msg, err := s.SendMessage(context.Background(), "look at ref.png and make something gothic")
	require.NoError(t, err)
	assert.Equal(t, "Here are two gothic takes.", msg.Text)
	s.Wait()

	assert.Equal(t, 2, fp.Count(provider.OpComplete))
	snap := s.Snapshot()
	assert.Equal(t, types.StatusIdle, snap.Status)
	assert.Empty(t, snap.SelectedAssetIDs, "tool disclosure is not sticky")
	require.Len(t, snap.Concepts, 2)
	assert.Equal(t, "Gothic Bloom", snap.Concepts[0].Name)
	assert.Equal(t, "Crypt Tailor", snap.Concepts[1].Name)
	for _, c := range snap.Concepts {
		assert.NotNil(t, c.Images.Primary)
		assert.NotNil(t, c.Images.Artistic)
	}

	var found bool
	for _, p := range fp.CallsFor(provider.OpComplete)[1].Request.(provider.CompletionRequest).Contents {
		for _, part := range p.Parts {
			found = found || (part.IsMedia() && string(part.Media.Data) == string(ref.Payload.Data))
		}
	}
	assert.True(t, found)

	roles := []types.Role{}
	for _, m := range snap.Chat {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []types.Role{types.RoleSystem, types.RoleUser, types.RoleAgent}, roles)
}

func TestBusyStudioRejectsMessagesAndEdits(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	concepts := withConcepts(t, s)
	images := fp.Count(provider.OpGenerateImage)

	lease, err := s.gate.TryAcquire(types.StatusProducing)
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.SendMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, status.ErrBusy)
	err = s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: concepts[0].ID, ImageID: concepts[0].Images.Primary.ID, Instruction: "shorter hem",
	})
	assert.ErrorIs(t, err, status.ErrBusy)
	assert.ErrorIs(t, s.GenerateConcepts(gothic), status.ErrBusy)

	assert.Equal(t, before.Version, s.Snapshot().Version)
	assert.Zero(t, fp.Count(provider.OpComplete))
	assert.Zero(t, fp.Count(provider.OpEditImage))
	assert.Equal(t, images, fp.Count(provider.OpGenerateImage))

	lease.Release()
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestStatusSnapshotFollowsGateUnderRacingTransitions(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	for i := 0; i < 2000; i++ {
		lease, err := s.gate.TryAcquire(types.StatusGenerating)
		require.NoError(t, err)
		go lease.Release()

		var next *status.Lease
		for next == nil {
			next, _ = s.gate.TryAcquire(types.StatusThinking)
			runtime.Gosched()
		}
		runtime.Gosched()
		require.Equal(t, s.gate.Current(), s.Snapshot().Status, "iteration %d", i)
		next.Release()
	}
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestSendMessage_EmptyIsRejected(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	_, err := s.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, s.Snapshot().Chat, 1)
}

func TestSendMessage_ProviderFailureReleasesGate(t *testing.T) {
	fp := fake.New()
	fp.OnComplete = func(context.Context, provider.CompletionRequest) (provider.Completion, error) {
		return provider.Completion{}, errors.New("quota exceeded")
	}
	s := newStudio(t, fp, Options{})

	msg, err := s.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, controller.ErrorReply, msg.Text)
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
	assert.Equal(t, controller.ErrorReply, lastChat(s).Text)
	assert.Empty(t, s.Snapshot().Concepts)
}

func TestUploadAndDisclosure(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	a, err := s.UploadAsset(types.Blob{MIMEType: "text/plain", Data: []byte("ravens")}, "brief.txt")
	require.NoError(t, err)
	assert.Equal(t, types.AssetText, a.Kind)
	assert.Equal(t, []string{a.ID}, s.Snapshot().SelectedAssetIDs, "uploads are shared by default")

	shared, err := s.ToggleAssetDisclosure(a.ID)
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Empty(t, s.Snapshot().SelectedAssetIDs)

	_, err = s.ToggleAssetDisclosure("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UploadAsset(types.Blob{MIMEType: "image/png"}, "empty.png")
	assert.Error(t, err)

	blob, ok := s.Media(a.ID)
	require.True(t, ok)
	assert.Equal(t, "ravens", string(blob.Data))
}

func TestSelectConcept(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	concepts := withConcepts(t, s)

	require.NoError(t, s.SelectConcept(concepts[1].ID))
	assert.Equal(t, concepts[1].ID, s.Snapshot().ActiveConceptID)
	require.NoError(t, s.SelectConcept(""))
	assert.Empty(t, s.Snapshot().ActiveConceptID)
	assert.ErrorIs(t, s.SelectConcept("nope"), ErrNotFound)

	blob, ok := s.Media(concepts[0].Images.Primary.ID)
	require.True(t, ok)
	assert.Equal(t, concepts[0].Images.Primary.Media, blob)
}

func TestFinalize_SynthesizesTechPackAndSources(t *testing.T) {
	fp := fake.New()
	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return json.RawMessage(silkPack), nil
	}
	fp.OnGroundedSearch = func(_ context.Context, q string) ([]types.SourcingResult, error) {
		out := make([]types.SourcingResult, 7)
		for i := range out {
			out[i] = types.SourcingResult{Title: fmt.Sprintf("Mill %d", i), URL: fmt.Sprintf("https://mill%d.example", i)}
		}
		return out, nil
	}
	s := newStudio(t, fp, Options{})
	id := withConcepts(t, s)[0].ID

	require.NoError(t, s.FinalizeConcept(id))
	s.Wait()

	c, ok := s.Snapshot().Concept(id)
	require.True(t, ok)
	assert.True(t, c.Finalized)
	require.NotNil(t, c.TechPack)
	assert.Contains(t, c.TechPack.BOM, types.BOMItem{Location: "Body", Item: "Silk Crepe", Description: "heavy 4-ply", Quantity: "3 yd", CostEstimate: 54})
	assert.Len(t, c.TechPack.SourcingResults, 5)
	require.NotNil(t, c.Images.Technical, "the technical flat is rendered before synthesis")
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)

	searches := fp.CallsFor(provider.OpGroundedSearch)
	require.Len(t, searches, 1)
	assert.Equal(t, "Silk Crepe heavy 4-ply wholesale fabric", searches[0].Request)

	require.NoError(t, s.FinalizeConcept(id))
	require.NoError(t, s.OpenSpecification(id))
	s.Wait()
	assert.Equal(t, 1, fp.Count(provider.OpCompleteStructured))
	c, _ = s.Snapshot().Concept(id)
	assert.Len(t, c.TechPack.BOM, 2)
}

func TestFinalize_WaitsForIdle(t *testing.T) {
	fp := fake.New()
	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return json.RawMessage(silkPack), nil
	}
	s := newStudio(t, fp, Options{})
	id := withConcepts(t, s)[0].ID

	lease, err := s.gate.TryAcquire(types.StatusProducing)
	require.NoError(t, err)
	require.NoError(t, s.FinalizeConcept(id))
	s.Wait()
	assert.Zero(t, fp.Count(provider.OpCompleteStructured))

	lease.Release()
	s.Wait()
	assert.Equal(t, 1, fp.Count(provider.OpCompleteStructured))
	c, _ := s.Snapshot().Concept(id)
	assert.NotNil(t, c.TechPack)
}

func TestFinalize_FailedSynthesisIsNotRetriedInALoop(t *testing.T) {
	fp := fake.New()
	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return nil, errors.New("model overloaded")
	}
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	require.NoError(t, s.FinalizeConcept(c.ID))
	s.Wait()
	assert.Equal(t, 1, fp.Count(provider.OpCompleteStructured))
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
	assert.Contains(t, lastChat(s).Text, "Gothic Bloom")

	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return json.RawMessage(silkPack), nil
	}
	tp, err := s.RegenerateTechPack(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "AT-FW27-014", tp.StyleNumber)
}

func TestApplyEdit_CascadesFromNewPrimary(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	release := make(chan struct{})
	fp.OnGenerateImage = func(ctx context.Context, parts []provider.Part) (types.Blob, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return types.Blob{}, ctx.Err()
		}
		return fake.Image(200), nil
	}

	err := s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Primary.ID, Instruction: "change sleeves to lace",
	})
	require.NoError(t, err)

	mid, _ := s.Snapshot().Concept(c.ID)
	assert.Equal(t, c.Revision+1, mid.Revision)
	assert.Equal(t, c.Images.Primary.ID, mid.Images.Primary.ID)
	assert.NotEqual(t, c.Images.Primary.URL, mid.Images.Primary.URL)
	assert.True(t, mid.Pending.Has(types.RoleArtistic))
	assert.True(t, mid.Pending.Has(types.RoleTechnical))
	require.NotNil(t, mid.Images.Artistic, "the old illustration stays visible while pending")
	assert.True(t, mid.Stale(types.RoleArtistic))
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status, "the editor closes before the cascade finishes")

	close(release)
	s.Wait()

	done, _ := s.Snapshot().Concept(c.ID)
	assert.Zero(t, done.Pending)
	for _, role := range []types.ImageRole{types.RoleArtistic, types.RoleTechnical} {
		img := done.Images.Get(role)
		require.NotNil(t, img, role)
		assert.Equal(t, done.Revision, img.SourceRevision, role)
		assert.False(t, done.Stale(role))
	}

	edits := fp.CallsFor(provider.OpEditImage)
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Request.(fake.EditRequest).Instruction, "change sleeves to lace")
}

func TestApplyEdit_SynthesisWaitsForCascade(t *testing.T) {
	fp := fake.New()
	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return nil, errors.New("model overloaded")
	}
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]
	require.NoError(t, s.FinalizeConcept(c.ID))
	s.Wait()
	require.Equal(t, 1, fp.Count(provider.OpCompleteStructured))

	fp.OnCompleteStructured = func(context.Context, provider.StructuredRequest) (json.RawMessage, error) {
		return json.RawMessage(silkPack), nil
	}
	release := make(chan struct{})
	var renders atomic.Int32
	fp.OnGenerateImage = func(ctx context.Context, parts []provider.Part) (types.Blob, error) {
		renders.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return types.Blob{}, ctx.Err()
		}
		return fake.Image(201), nil
	}

	require.NoError(t, s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Primary.ID, Instruction: "shorten the hem",
	}))
	assert.Equal(t, 1, fp.Count(provider.OpCompleteStructured), "no synthesis while derivatives render")

	close(release)
	s.Wait()

	done, _ := s.Snapshot().Concept(c.ID)
	require.NotNil(t, done.TechPack)
	assert.Equal(t, 2, fp.Count(provider.OpCompleteStructured))
	assert.Equal(t, int32(2), renders.Load(), "synthesis reuses the cascaded technical flat")
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestApplyEdit_RedirectsDerivativeEdits(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	err := s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Artistic.ID, Instruction: "add a train",
	})
	var ro *edit.ReadOnlyError
	require.ErrorAs(t, err, &ro)
	assert.Equal(t, c.Images.Primary.ID, ro.PrimaryImageID)
	assert.Zero(t, fp.Count(provider.OpEditImage))
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestApplyEdit_FailureLeavesDesignUnchanged(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]
	fp.OnEditImage = func(context.Context, types.Blob, string) (types.Blob, error) {
		return types.Blob{}, errors.New("safety block")
	}

	err := s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Primary.ID, Instruction: "make it sheer",
	})
	require.Error(t, err)
	s.Wait()

	after, _ := s.Snapshot().Concept(c.ID)
	assert.Equal(t, c.Revision, after.Revision)
	assert.Equal(t, c.Images.Primary.Media, after.Images.Primary.Media)
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
	assert.Equal(t, types.RoleSystem, lastChat(s).Role)
}

func TestRefreshDerivatives_RecoversFromFailedCascade(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	fp.OnGenerateImage = func(context.Context, []provider.Part) (types.Blob, error) {
		return types.Blob{}, errors.New("unavailable")
	}
	require.NoError(t, s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Primary.ID, Instruction: "lower the neckline",
	}))
	s.Wait()
	stale, _ := s.Snapshot().Concept(c.ID)
	assert.True(t, stale.Stale(types.RoleArtistic))
	assert.Zero(t, stale.Pending)

	fp.OnGenerateImage = nil
	require.NoError(t, s.RefreshDerivatives(context.Background(), c.ID))
	fresh, _ := s.Snapshot().Concept(c.ID)
	assert.False(t, fresh.Stale(types.RoleArtistic))
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestProduce_VideoPollsUntilDone(t *testing.T) {
	fp := fake.New()
	polls := 0
	fp.OnPollJob = func(_ context.Context, job provider.JobHandle) (provider.JobStatus, error) {
		polls++
		if polls <= 3 {
			return provider.JobStatus{}, nil
		}
		return provider.JobStatus{Done: true, ResultRef: job.ID + "/video"}, nil
	}
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	asset, err := s.Produce(context.Background(), c.ID, "paris", types.RunwayVideo)
	require.NoError(t, err)
	assert.Equal(t, types.RunwayVideo, asset.Kind)
	assert.Equal(t, c.ID, asset.SourceConceptID)

	assert.Equal(t, 4, fp.Count(provider.OpPollJob))
	assert.Equal(t, 1, fp.Count(provider.OpFetchResult))
	snap := s.Snapshot()
	require.Len(t, snap.Gallery, 1)
	assert.Equal(t, asset.ID, snap.Gallery[0].ID)
	assert.Equal(t, types.StatusIdle, snap.Status)
}

func TestProduce_PhotoPrependsToGallery(t *testing.T) {
	fp := fake.New()
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	first, err := s.Produce(context.Background(), c.ID, "neon", types.RunwayPhoto)
	require.NoError(t, err)
	second, err := s.Produce(context.Background(), c.ID, "a rainy rooftop in Tokyo", types.RunwayPhoto)
	require.NoError(t, err)
	assert.Equal(t, runway.CustomLabel, second.ScenarioLabel)

	gallery := s.Snapshot().Gallery
	require.Len(t, gallery, 2)
	assert.Equal(t, second.ID, gallery[0].ID)
	assert.Equal(t, first.ID, gallery[1].ID)
}

func TestProduce_RejectsConceptWithoutPrimary(t *testing.T) {
	fp := fake.New()
	fp.OnGenerateImage = func(context.Context, []provider.Part) (types.Blob, error) {
		return types.Blob{}, errors.New("down")
	}
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]
	require.Nil(t, c.Images.Primary)

	_, err := s.Produce(context.Background(), c.ID, "studio", types.RunwayPhoto)
	assert.ErrorIs(t, err, runway.ErrNoPrimary)
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
	assert.Empty(t, s.Snapshot().Gallery)
}

func TestCancelProduction_StopsPolling(t *testing.T) {
	fp := fake.New()
	polled := make(chan struct{}, 1)
	fp.OnPollJob = func(context.Context, provider.JobHandle) (provider.JobStatus, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return provider.JobStatus{}, nil
	}
	s := newStudio(t, fp, Options{})
	c := withConcepts(t, s)[0]

	require.NoError(t, s.StartProduction(c.ID, "desert", types.RunwayVideo))
	<-polled
	assert.True(t, s.CancelProduction())
	s.Wait()

	assert.False(t, s.CancelProduction())
	assert.Zero(t, fp.Count(provider.OpFetchResult))
	assert.Empty(t, s.Snapshot().Gallery)
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
	assert.True(t, strings.Contains(lastChat(s).Text, "cancelled"))
}

func TestUnconfiguredStudioDegrades(t *testing.T) {
	s := newStudio(t, provider.Unconfigured{}, Options{})
	assert.False(t, s.Configured())

	msg, err := s.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, controller.UnconfiguredReply, msg.Text)

	concepts := withConcepts(t, s)
	for _, c := range concepts {
		require.NotNil(t, c.Images.Primary)
		assert.True(t, c.Images.Primary.Placeholder)
	}

	c := concepts[0]
	err = s.ApplyEdit(context.Background(), edit.Request{
		ConceptID: c.ID, ImageID: c.Images.Primary.ID, Instruction: "add pockets",
	})
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	after, _ := s.Snapshot().Concept(c.ID)
	assert.Equal(t, c.Revision, after.Revision)

	require.NoError(t, s.FinalizeConcept(c.ID))
	s.Wait()
	after, _ = s.Snapshot().Concept(c.ID)
	assert.Nil(t, after.TechPack)
	assert.Equal(t, types.RoleSystem, lastChat(s).Role)

	_, err = s.Produce(context.Background(), c.ID, "", types.RunwayPhoto)
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	assert.Equal(t, types.StatusIdle, s.Snapshot().Status)
}

func TestClose_RejectsNewWork(t *testing.T) {
	s := newStudio(t, fake.New(), Options{})
	require.NoError(t, s.Close())
	_, err := s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.GenerateConcepts(gothic), ErrClosed)
}
