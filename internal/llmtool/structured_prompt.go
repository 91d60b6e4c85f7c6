package llmtool

import (
	"errors"
	"fmt"
	"strings"

	"atelier/internal/util/jsonutil"
)

// PromptField is one output field as the model sees it in the [OUTPUT] section.
type PromptField struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

func (f PromptField) line() string {
	need := "optional"
	if f.Required {
		need = "required"
	}
	s := fmt.Sprintf("- %s (%s, %s)", strings.TrimSpace(f.Name), f.Type, need)
	if f.Description != "" {
		s += ": " + f.Description
	}
	return s
}

// StructuredPromptSpec is a system instruction split into titled sections.
type StructuredPromptSpec struct {
	Purpose      string
	Background   string
	OutputFields []PromptField
	Constraints  []string
	Rules        []string
	OutputFormat string
}

// Render lays the sections out in a fixed order, skipping empty ones.
// input, when non-nil, is embedded as JSON under [INPUT].
func (spec StructuredPromptSpec) Render(input any) (string, error) {
	switch {
	case strings.TrimSpace(spec.Purpose) == "":
		return "", errors.New("llmtool: purpose is empty")
	case len(spec.OutputFields) == 0:
		return "", errors.New("llmtool: output fields are empty")
	}

	var in string
	if input != nil {
		b, err := jsonutil.MarshalNoEscape(input)
		if err != nil {
			return "", fmt.Errorf("llmtool: encode input: %w", err)
		}
		in = string(b)
	}

	fields := make([]string, 0, len(spec.OutputFields))
	for _, f := range spec.OutputFields {
		if strings.TrimSpace(f.Name) != "" {
			fields = append(fields, f.line())
		}
	}

	sections := []struct{ title, body string }{
		{"PURPOSE", spec.Purpose},
		{"BACKGROUND", spec.Background},
		{"INPUT", in},
		{"OUTPUT", strings.Join(fields, "\n")},
		{"CONSTRAINTS", bullets(spec.Constraints)},
		{"RULES", bullets(spec.Rules)},
		{"OUTPUT_FORMAT", spec.OutputFormat},
	}
	var sb strings.Builder
	for _, s := range sections {
		body := strings.TrimRight(s.body, "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", s.title, body)
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}

func bullets(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, "- "+it)
		}
	}
	return strings.Join(out, "\n")
}
