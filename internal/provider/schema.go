package provider

// SchemaType follows the OpenAPI subset understood by generative backends.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToolSchema declares a function the model may invoke.
type ToolSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

func String(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }
func Number(desc string) *Schema { return &Schema{Type: TypeNumber, Description: desc} }
func ArrayOf(items *Schema, desc string) *Schema {
	return &Schema{Type: TypeArray, Items: items, Description: desc}
}

func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}
