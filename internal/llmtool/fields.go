package llmtool

import (
	"fmt"
	"reflect"
	"strings"

	"atelier/internal/provider"
)

// FieldOptions controls how struct fields map to PromptField and Schema.
type FieldOptions struct {
	NameTag         string
	DescTag         string
	PromptTag       string
	RequiredDefault bool
}

// DefaultFieldOptions returns the standard tag mapping.
func DefaultFieldOptions() FieldOptions {
	return FieldOptions{
		NameTag:         "json",
		DescTag:         "prompt_desc",
		PromptTag:       "prompt",
		RequiredDefault: true,
	}
}

// FieldsFromStruct builds prompt fields from a Go struct using tags.
func FieldsFromStruct(v any, opts ...FieldOptions) ([]PromptField, error) {
	t, cfg, err := structType(v, opts)
	if err != nil {
		return nil, err
	}
	fields := make([]PromptField, 0, t.NumField())
	eachField(t, cfg, func(f reflect.StructField, name string, required bool) {
		fields = append(fields, PromptField{
			Name:        name,
			Type:        typeString(f.Type),
			Required:    required,
			Description: strings.TrimSpace(f.Tag.Get(cfg.DescTag)),
		})
	})
	return fields, nil
}

// MustFieldsFromStruct panics on error; useful for prompt spec literals.
func MustFieldsFromStruct(v any, opts ...FieldOptions) []PromptField {
	fields, err := FieldsFromStruct(v, opts...)
	if err != nil {
		panic(err)
	}
	return fields
}

// SchemaFromStruct derives the response schema handed to the structured
// completion capability, so the prompt and the schema cannot drift apart.
func SchemaFromStruct(v any, opts ...FieldOptions) (*provider.Schema, error) {
	t, cfg, err := structType(v, opts)
	if err != nil {
		return nil, err
	}
	return objectSchema(t, cfg, ""), nil
}

// MustSchemaFromStruct panics on error; useful for package-level schemas.
func MustSchemaFromStruct(v any, opts ...FieldOptions) *provider.Schema {
	s, err := SchemaFromStruct(v, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func structType(v any, opts []FieldOptions) (reflect.Type, FieldOptions, error) {
	cfg := DefaultFieldOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}
	if v == nil {
		return nil, cfg, fmt.Errorf("llmtool: struct is nil")
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, cfg, fmt.Errorf("llmtool: expected struct, got %s", t.Kind())
	}
	return t, cfg, nil
}

func eachField(t reflect.Type, cfg FieldOptions, fn func(f reflect.StructField, name string, required bool)) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || hasPromptFlag(f, cfg.PromptTag, "-", "omit") {
			continue
		}
		name := fieldName(f, cfg.NameTag)
		if name == "" {
			continue
		}
		required := cfg.RequiredDefault
		switch {
		case hasPromptFlag(f, cfg.PromptTag, "required"):
			required = true
		case hasPromptFlag(f, cfg.PromptTag, "optional"):
			required = false
		}
		fn(f, name, required)
	}
}

func objectSchema(t reflect.Type, cfg FieldOptions, desc string) *provider.Schema {
	props := map[string]*provider.Schema{}
	var required []string
	eachField(t, cfg, func(f reflect.StructField, name string, req bool) {
		props[name] = schemaFor(f.Type, cfg, strings.TrimSpace(f.Tag.Get(cfg.DescTag)))
		if req {
			required = append(required, name)
		}
	})
	s := provider.Object(props, required...)
	s.Description = desc
	return s
}

func schemaFor(t reflect.Type, cfg FieldOptions, desc string) *provider.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return objectSchema(t, cfg, desc)
	case reflect.Slice, reflect.Array:
		return provider.ArrayOf(schemaFor(t.Elem(), cfg, ""), desc)
	case reflect.Bool:
		return &provider.Schema{Type: provider.TypeBoolean, Description: desc}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &provider.Schema{Type: provider.TypeInteger, Description: desc}
	case reflect.Float32, reflect.Float64:
		return provider.Number(desc)
	default:
		return provider.String(desc)
	}
}

func hasPromptFlag(f reflect.StructField, promptTag string, flags ...string) bool {
	tag := strings.TrimSpace(f.Tag.Get(promptTag))
	if tag == "" {
		return false
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		for _, flag := range flags {
			if part == flag {
				return true
			}
		}
	}
	return false
}

func fieldName(f reflect.StructField, nameTag string) string {
	tag := strings.TrimSpace(f.Tag.Get(nameTag))
	if tag != "" {
		name := strings.Split(tag, ",")[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return toSnake(f.Name)
}

func typeString(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "[]" + typeString(t.Elem())
	case reflect.Struct:
		return "object"
	default:
		return t.Kind().String()
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
