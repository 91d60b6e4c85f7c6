package llmtool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeConceptArgs_DefaultsMissingFields(t *testing.T) {
	args := DecodeConceptArgs(map[string]any{
		"concept1_name":        "Gothic Bloom",
		"concept1_description": 42.0,
		"concept2_description": "  ",
	})
	assert.Equal(t, "Gothic Bloom", args.First.Name)
	assert.Equal(t, "42", args.First.Description)
	assert.Equal(t, DefaultConcept2Name, args.Second.Name)
	assert.Equal(t, DefaultDescription, args.Second.Description)

	empty := DecodeConceptArgs(nil)
	assert.Equal(t, [2]ConceptBrief{
		{Name: DefaultConcept1Name, Description: DefaultDescription},
		{Name: DefaultConcept2Name, Description: DefaultDescription},
	}, empty.Pair())
}

func TestDecodeAssetRefs_AcceptsShapes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, DecodeAssetRefs(map[string]any{"asset_ids": []any{"a", "b", "a", nil}}))
	assert.Equal(t, []string{"a", "b"}, DecodeAssetRefs(map[string]any{"asset_ids": "a, b"}))
	assert.Equal(t, []string{"x"}, DecodeAssetRefs(map[string]any{"assetIds": []any{"x"}}))
	assert.Empty(t, DecodeAssetRefs(map[string]any{}))
}

func TestNumber_Coerces(t *testing.T) {
	assert.Equal(t, 12.5, Number("$12.50"))
	assert.Equal(t, 1200.0, Number("1,200"))
	assert.Equal(t, 3.0, Number(3.0))
	assert.Zero(t, Number("n/a"))
	assert.Zero(t, Number(nil))
}

func TestObjects_SkipsNonObjects(t *testing.T) {
	got := Objects(map[string]any{"bom": []any{map[string]any{"item": "silk"}, "junk", nil}}, "bom")
	assert.Len(t, got, 1)
	assert.Nil(t, Objects(map[string]any{"bom": "nope"}, "bom"))
}
