package techpack

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/types"
	"atelier/internal/util/jsonutil"
)

// output is the shape requested from the reasoning model. It only drives the
// prompt and the response schema; decoding goes through decode, which
// tolerates missing, null and mistyped fields.
type output struct {
	StyleNumber       string       `json:"styleNumber" prompt_desc:"Internal style code, e.g. AT-SS27-014."`
	Season            string       `json:"season" prompt_desc:"Target season, e.g. SS27."`
	BOM               []bomRow     `json:"bom" prompt_desc:"Bill of materials, main fabric first."`
	Measurements      []measureRow `json:"measurements" prompt_desc:"Key points of measure for a sample size."`
	ConstructionNotes []string     `json:"constructionNotes" prompt_desc:"Seam, finishing and assembly notes."`
	TotalCostEstimate float64      `json:"totalCostEstimate" prompt_desc:"Sum of BOM cost estimates per unit."`
	Currency          string       `json:"currency" prompt:"optional" prompt_desc:"ISO currency code; USD when unsure."`
}

type bomRow struct {
	Location     string  `json:"location" prompt_desc:"Where it is used: Body, Lining, Trim, Closure..."`
	Item         string  `json:"item" prompt_desc:"Material name, e.g. Silk Crepe."`
	Description  string  `json:"description" prompt_desc:"Weight, weave, finish or colour."`
	Quantity     string  `json:"quantity" prompt_desc:"Consumption with unit, e.g. 2.5 yd."`
	CostEstimate float64 `json:"costEstimate" prompt_desc:"Estimated cost for that quantity."`
}

type measureRow struct {
	PointOfMeasure string `json:"pointOfMeasure"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	Tolerance      string `json:"tolerance"`
}

var (
	outputSchema = llmtool.MustSchemaFromStruct(output{})
	outputFields = llmtool.MustFieldsFromStruct(output{})
)

var promptSpec = llmtool.ApplyPresets(llmtool.StructuredPromptSpec{
	Purpose:      "Produce a factory-ready tech pack for the garment shown in the attached images (realistic render and technical flat).",
	Background:   "You are a senior technical designer preparing a first-sample tech pack for a fashion house.",
	OutputFields: outputFields,
	Rules: []string{
		"List the main body fabric first with location \"Body\".",
		"Give measurements for a sample size M.",
	},
	OutputFormat: "A single JSON object.",
}, llmtool.PresetStrictJSON(), llmtool.PresetGarmentOnly())

func request(c types.DesignConcept, primary, technical types.Blob) (provider.StructuredRequest, error) {
	system, err := promptSpec.Render(map[string]string{"name": c.Name, "description": c.Description})
	if err != nil {
		return provider.StructuredRequest{}, err
	}
	parts := []provider.Part{provider.TextPart(fmt.Sprintf("Concept %q. Realistic render:", c.Name)), provider.MediaPart(primary)}
	if !technical.Empty() {
		parts = append(parts, provider.TextPart("Technical flat:"), provider.MediaPart(technical))
	}
	return provider.StructuredRequest{
		System:   system,
		Contents: []provider.Content{{Role: provider.RoleUser, Parts: parts}},
		Schema:   outputSchema,
	}, nil
}

// decode assembles a TechPack from untrusted JSON. Only a payload that is not
// a JSON object at all is an error.
func decode(raw json.RawMessage) (types.TechPack, error) {
	m, err := jsonutil.DecodeObject(raw)
	if err != nil || m == nil {
		return types.TechPack{}, fmt.Errorf("%w: %s", provider.ErrInvalidJSON, truncate(string(raw), 120))
	}
	tp := types.TechPack{
		StyleNumber:       llmtool.String(m["styleNumber"]),
		Season:            llmtool.String(m["season"]),
		ConstructionNotes: llmtool.Strings(m, "constructionNotes"),
		TotalCostEstimate: llmtool.Number(m["totalCostEstimate"]),
		Currency:          llmtool.StringOr(m, "currency", "USD"),
		BOM:               []types.BOMItem{},
		Measurements:      []types.Measurement{},
		SourcingResults:   []types.SourcingResult{},
	}
	for _, row := range llmtool.Objects(m, "bom") {
		tp.BOM = append(tp.BOM, types.BOMItem{
			Location:     llmtool.String(row["location"]),
			Item:         llmtool.String(row["item"]),
			Description:  llmtool.String(row["description"]),
			Quantity:     llmtool.String(row["quantity"]),
			CostEstimate: llmtool.Number(row["costEstimate"]),
		})
	}
	for _, row := range llmtool.Objects(m, "measurements") {
		tp.Measurements = append(tp.Measurements, types.Measurement{
			PointOfMeasure: llmtool.String(row["pointOfMeasure"]),
			Value:          llmtool.String(row["value"]),
			Unit:           llmtool.String(row["unit"]),
			Tolerance:      llmtool.String(row["tolerance"]),
		})
	}
	if tp.ConstructionNotes == nil {
		tp.ConstructionNotes = []string{}
	}
	if tp.TotalCostEstimate == 0 {
		for _, b := range tp.BOM {
			tp.TotalCostEstimate += b.CostEstimate
		}
	}
	return tp, nil
}

// MainFabric picks the first BOM row whose location mentions the body or
// main fabric.
func MainFabric(bom []types.BOMItem) (types.BOMItem, bool) {
	for _, b := range bom {
		loc := strings.ToLower(b.Location)
		if strings.Contains(loc, "body") || strings.Contains(loc, "main") {
			return b, true
		}
	}
	return types.BOMItem{}, false
}

// SourcingQuery is the grounded-search query for a main fabric row.
func SourcingQuery(b types.BOMItem) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{b.Item, b.Description, "wholesale fabric"} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
