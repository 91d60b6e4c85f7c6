package pipeline

import (
	"fmt"

	"atelier/internal/llmtool"
	"atelier/internal/provider"
	"atelier/internal/types"
)

const promptPrimary = `High-end fashion photograph of a single new garment design worn by a model.
Design "%s": %s
Full-length front view, plain neutral studio background, soft even lighting, photorealistic 8k detail.
Show the garment clearly; no text, logos or watermarks.`

const promptArtistic = `Redraw the exact garment in this photograph as an expressive fashion illustration:
elongated croquis figure, loose ink line with watercolour wash, white paper background.
Keep the silhouette, colours, fabrics and every design detail identical to the photograph.`

const promptTechnical = `Convert the exact garment in this photograph into a technical flat sketch for a factory tech pack:
front and back views side by side, clean black vector line art on white, no model, no shading, no colour.
Show seams, topstitching, darts, closures and trims exactly as in the photograph.`

func primaryParts(brief llmtool.ConceptBrief) []provider.Part {
	return provider.Texts(fmt.Sprintf(promptPrimary, brief.Name, brief.Description))
}

// derivativeParts conditions a derivative on the primary's content, never on
// the text description, so the two stay visually consistent.
func derivativeParts(role types.ImageRole, primary types.Blob) []provider.Part {
	prompt := promptArtistic
	if role == types.RoleTechnical {
		prompt = promptTechnical
	}
	return []provider.Part{provider.MediaPart(primary), provider.TextPart(prompt)}
}
