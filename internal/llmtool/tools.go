// Package llmtool holds what the orchestration layer exchanges with the
// reasoning model: tool declarations, lenient decoding of tool arguments
// and structured output, and sectioned prompt rendering.
package llmtool

import (
	"strings"

	"atelier/internal/provider"
)

const (
	ToolGenerateConcepts = "generate_concepts"
	ToolViewAssets       = "view_assets"
)

const (
	DefaultConcept1Name = "Concept Alpha"
	DefaultConcept2Name = "Concept Beta"
	DefaultDescription  = "Awaiting description..."
)

// GenerateConceptsTool asks for a pair of named, described design concepts.
var GenerateConceptsTool = provider.ToolSchema{
	Name:        ToolGenerateConcepts,
	Description: "Generate two distinct fashion design concepts once the user has asked for designs or confirmed the direction.",
	Parameters: provider.Object(map[string]*provider.Schema{
		"concept1_name":        provider.String("Short evocative name of the first concept."),
		"concept1_description": provider.String("Detailed visual description of the first garment: silhouette, fabric, colour, details."),
		"concept2_name":        provider.String("Short evocative name of the second concept."),
		"concept2_description": provider.String("Detailed visual description of the second garment."),
	}, "concept1_name", "concept1_description", "concept2_name", "concept2_description"),
}

// ViewAssetsTool asks to have named inspiration assets disclosed.
var ViewAssetsTool = provider.ToolSchema{
	Name:        ToolViewAssets,
	Description: "Load the content of inspiration assets you can only see by name. Pass their ids.",
	Parameters: provider.Object(map[string]*provider.Schema{
		"asset_ids": provider.ArrayOf(provider.String("Asset id from the available assets list."), "Assets to load."),
	}, "asset_ids"),
}

// ConceptBrief is one half of a generate_concepts invocation.
type ConceptBrief struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConceptArgs are decoded generate_concepts arguments. Decoding never fails;
// missing or mistyped fields take placeholder values.
type ConceptArgs struct {
	First  ConceptBrief `json:"first"`
	Second ConceptBrief `json:"second"`
}

func (a ConceptArgs) Pair() [2]ConceptBrief { return [2]ConceptBrief{a.First, a.Second} }

func DecodeConceptArgs(args map[string]any) ConceptArgs {
	return ConceptArgs{
		First: ConceptBrief{
			Name:        StringOr(args, "concept1_name", DefaultConcept1Name),
			Description: StringOr(args, "concept1_description", DefaultDescription),
		},
		Second: ConceptBrief{
			Name:        StringOr(args, "concept2_name", DefaultConcept2Name),
			Description: StringOr(args, "concept2_description", DefaultDescription),
		},
	}
}

// DecodeAssetRefs reads view_assets arguments. Models send a list, a single
// string or a comma separated string; all are accepted and deduplicated.
func DecodeAssetRefs(args map[string]any) []string {
	var raw []string
	for _, key := range []string{"asset_ids", "assetIds", "ids"} {
		raw = append(raw, Strings(args, key)...)
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}
