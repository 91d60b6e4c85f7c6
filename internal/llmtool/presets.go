package llmtool

// PromptPreset holds reusable constraints and rules for structured prompts.
type PromptPreset struct {
	Constraints []string
	Rules       []string
}

// ApplyPresets prepends preset constraints/rules to a structured prompt spec.
func ApplyPresets(spec StructuredPromptSpec, presets ...PromptPreset) StructuredPromptSpec {
	if len(presets) == 0 {
		return spec
	}
	var merged PromptPreset
	for _, p := range presets {
		merged.Constraints = append(merged.Constraints, p.Constraints...)
		merged.Rules = append(merged.Rules, p.Rules...)
	}
	spec.Constraints = append(merged.Constraints, spec.Constraints...)
	spec.Rules = append(merged.Rules, spec.Rules...)
	return spec
}

// PresetStrictJSON asks for schema-exact JSON with no surrounding prose.
func PresetStrictJSON() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Return strict JSON only.",
			"Match the schema exactly; no extra fields.",
		},
	}
}

// PresetGarmentOnly keeps the model describing what is visible in the
// supplied imagery.
func PresetGarmentOnly() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Describe only the garment shown; do not invent trims or panels that are not visible.",
		},
		Rules: []string{
			"When a value cannot be read from the images, give an industry-typical estimate and keep units explicit.",
		},
	}
}
