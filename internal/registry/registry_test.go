package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/types"
)

func TestAdd_InfersKindAndCopiesPayload(t *testing.T) {
	r := New()
	data := []byte("pngbytes")
	a, err := r.Add(types.Blob{MIMEType: "image/png", Data: data}, " ref.png ")
	require.NoError(t, err)
	data[0] = 'X'

	assert.Equal(t, types.AssetImage, a.Kind)
	assert.Equal(t, "ref.png", a.DisplayName)
	got, err := r.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(got.Payload.Data))

	_, err = r.Add(types.Blob{MIMEType: "text/plain"}, "empty.txt")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestResolve_ByIDThenName(t *testing.T) {
	r := New()
	a, _ := r.Add(types.Blob{MIMEType: "image/png", Data: []byte{1}}, "Ref.png")
	b, _ := r.Add(types.Blob{MIMEType: "text/plain", Data: []byte("brief")}, "brief.txt")

	got, err := r.Resolve(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = r.Resolve("ref.PNG")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = r.Resolve("brief.txt")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = r.Resolve("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManifest_IsMetadataOnlyInUploadOrder(t *testing.T) {
	r := New()
	a, _ := r.Add(types.Blob{MIMEType: "video/mp4", Data: []byte("v")}, "walk.mp4")
	b, _ := r.Add(types.Blob{MIMEType: "audio/wav", Data: []byte("a")}, "")

	m := r.Manifest([]string{b.ID})
	require.Len(t, m, 2)
	assert.Equal(t, types.AssetRef{ID: a.ID, DisplayName: "walk.mp4", Kind: types.AssetVideo}, m[0])
	assert.Equal(t, b.ID, m[1].DisplayName)
	assert.True(t, m[1].Disclosed)
	assert.Equal(t, 2, r.Len())
}
