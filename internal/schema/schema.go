// Package schema describes flat JSON object shapes: tool parameters advertised
// to the model and strict output formats requested from it. A Schema can be
// rendered as JSON Schema for the wire and used to validate what comes back.
package schema

// Type is a JSON Schema primitive type name.
type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Boolean Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
)

// Field is a single named property of an object schema.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        Type   `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	// Items is the element type when Type is Array. Empty means any.
	Items Type `json:"items,omitempty" yaml:"items,omitempty"`
	// Enum restricts string values when non-empty.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Schema is an object with an ordered list of fields.
type Schema struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []Field `json:"fields" yaml:"fields"`
	// Strict forbids properties that are not declared.
	Strict bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// New builds a schema from fields.
func New(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// Req is shorthand for a required field.
func Req(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Description: description, Required: true}
}

// Opt is shorthand for an optional field.
func Opt(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Description: description}
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Required returns the names of required fields in declaration order.
func (s *Schema) Required() []string {
	if s == nil {
		return nil
	}
	var req []string
	for _, f := range s.Fields {
		if f.Required {
			req = append(req, f.Name)
		}
	}
	return req
}

// JSONSchema renders the schema as a JSON Schema object suitable for
// tool "parameters" or a response_format json_schema.
func (s *Schema) JSONSchema() map[string]interface{} {
	props := map[string]interface{}{}
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if s == nil {
		return out
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	for _, f := range s.Fields {
		p := map[string]interface{}{"type": string(f.Type)}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if f.Type == Array && f.Items != "" {
			p["items"] = map[string]interface{}{"type": string(f.Items)}
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		props[f.Name] = p
	}
	if req := s.Required(); len(req) > 0 {
		out["required"] = req
	}
	if s.Strict {
		out["additionalProperties"] = false
	}
	return out
}
