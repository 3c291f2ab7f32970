// Package schemas provides JSON Schema definitions for tool calling and
// validates tool arguments against them.
package schemas

import (
	"fmt"
	"slices"
	"strings"

	"github.com/flynn-ai/opsconsole/pkg/protocol"
)

// Schema defines a tool's parameter contract.
type Schema struct {
	Name        string
	Description string

	order  []string
	params map[string]protocol.Parameter
}

// SchemaBuilder provides a fluent interface for building tool schemas.
type SchemaBuilder struct {
	schema *Schema
}

// NewSchema creates a new schema builder with the given name and description.
func NewSchema(name, description string) *SchemaBuilder {
	return &SchemaBuilder{
		schema: &Schema{
			Name:        name,
			Description: description,
			params:      make(map[string]protocol.Parameter),
		},
	}
}

// AddParam adds a parameter to the schema.
func (b *SchemaBuilder) AddParam(name, paramType, description string, required bool) *SchemaBuilder {
	return b.add(name, protocol.Parameter{Type: paramType, Description: description, Required: required})
}

// AddParamWithEnum adds a parameter with an enum constraint.
func (b *SchemaBuilder) AddParamWithEnum(name, paramType, description string, enum []string, required bool) *SchemaBuilder {
	return b.add(name, protocol.Parameter{Type: paramType, Description: description, Required: required, Enum: enum})
}

// AddParamWithDefault adds an optional parameter with a default value.
func (b *SchemaBuilder) AddParamWithDefault(name, paramType, description string, def any) *SchemaBuilder {
	return b.add(name, protocol.Parameter{Type: paramType, Description: description, Default: def})
}

func (b *SchemaBuilder) add(name string, p protocol.Parameter) *SchemaBuilder {
	if _, exists := b.schema.params[name]; !exists {
		b.schema.order = append(b.schema.order, name)
	}
	b.schema.params[name] = p
	return b
}

// Build returns the constructed schema.
func (b *SchemaBuilder) Build() *Schema {
	return b.schema
}

// Parameters renders the schema as a JSON Schema object.
func (s *Schema) Parameters() map[string]any {
	props := make(map[string]any, len(s.params))
	required := make([]string, 0)
	for _, name := range s.order {
		p := s.params[name]
		def := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			def["enum"] = p.Enum
		}
		if p.Default != nil {
			def["default"] = p.Default
		}
		if p.Type == "array" {
			def["items"] = map[string]any{"type": "string"}
		}
		props[name] = def
		if p.Required {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Definition returns the schema as a protocol tool definition.
func (s *Schema) Definition() protocol.ToolDefinition {
	params := make(map[string]protocol.Parameter, len(s.params))
	for k, v := range s.params {
		params[k] = v
	}
	return protocol.ToolDefinition{Name: s.Name, Description: s.Description, Parameters: params}
}

// Validate checks required parameters, types and enum values. Unknown
// arguments are ignored. Defaults are filled into args in place.
func (s *Schema) Validate(args map[string]any) error {
	var problems []string
	for _, name := range s.order {
		p := s.params[name]
		v, ok := args[name]
		if !ok || v == nil || v == "" {
			if p.Required {
				problems = append(problems, fmt.Sprintf("%s is required", name))
			} else if p.Default != nil {
				args[name] = p.Default
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			problems = append(problems, fmt.Sprintf("%s must be %s", name, article(p.Type)))
			continue
		}
		if len(p.Enum) > 0 {
			str, _ := v.(string)
			if !slices.Contains(p.Enum, str) {
				problems = append(problems, fmt.Sprintf("%s must be one of %s", name, strings.Join(p.Enum, ", ")))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid arguments for %s: %s", s.Name, strings.Join(problems, "; "))
	}
	return nil
}

func typeMatches(paramType string, v any) bool {
	switch paramType {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer", "number":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return paramType == "number" || n == float64(int64(n))
		case float32:
			return paramType == "number" || n == float32(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

func article(t string) string {
	switch t {
	case "integer", "array", "object":
		return "an " + t
	}
	return "a " + t
}

// Registry holds tool schemas in registration order.
type Registry struct {
	order   []string
	schemas map[string]*Schema
}

// NewRegistry creates a new empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema to the registry.
func (r *Registry) Register(schema *Schema) {
	if _, exists := r.schemas[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.schemas[schema.Name] = schema
}

// Get retrieves a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// List returns all registered schema names.
func (r *Registry) List() []string {
	return slices.Clone(r.order)
}

// All returns the schemas in registration order.
func (r *Registry) All() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// ToOpenAIFormat converts schemas to OpenAI function calling format.
func (r *Registry) ToOpenAIFormat() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, schema := range r.All() {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        schema.Name,
				"description": schema.Description,
				"parameters":  schema.Parameters(),
			},
		})
	}
	return result
}
