// Package schema compiles JSON Schemas for the values extracted from a live feed, most notably
// tool-call arguments.
//
// Schemas are written either as plain maps, typically loaded from a config file, or with the
// builders:
//
//	args := schema.Object(map[string]*schema.Property{
//	    "query": schema.String("Search query").MinLength(1),
//	    "limit": schema.Integer("Max results").Min(1).Max(50),
//	}, "query")
//	s, err := schema.Compile(args)
//
// Validation only ever runs against materialized values, never against the raw feed.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const resourceURL = "livefeed-schema.json"

// Schema is a compiled JSON Schema plus the raw document it was compiled from.
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Raw returns the schema document.
func (s *Schema) Raw() map[string]any {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks a materialized value against the schema. A nil Schema accepts everything.
func (s *Schema) Validate(value any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if err := s.compiled.Validate(value); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// ValidationError reports a value that does not satisfy its schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Compile compiles a schema document. A nil document compiles to a nil Schema, which accepts
// everything.
func Compile(raw map[string]any) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return compile(raw, doc)
}

// CompileJSON compiles a schema given as JSON text.
func CompileJSON(doc []byte) (*Schema, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return compile(raw, doc)
}

// MustCompile is like Compile but panics on error.
func MustCompile(raw map[string]any) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(raw map[string]any, doc []byte) (*Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, parsed); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// Object returns an object schema document. Names listed in required must be present.
func Object(properties map[string]*Property, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, p := range properties {
		props[name] = p.Map()
	}
	doc := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// Property is one property of an object schema, built fluently.
type Property struct {
	m map[string]any
}

func newProperty(typ, description string) *Property {
	p := &Property{m: map[string]any{"type": typ}}
	if description != "" {
		p.m["description"] = description
	}
	return p
}

// String creates a string property.
func String(description string) *Property { return newProperty("string", description) }

// Integer creates an integer property.
func Integer(description string) *Property { return newProperty("integer", description) }

// Number creates a number property.
func Number(description string) *Property { return newProperty("number", description) }

// Boolean creates a boolean property.
func Boolean(description string) *Property { return newProperty("boolean", description) }

// Array creates an array property whose elements satisfy items.
func Array(description string, items map[string]any) *Property {
	p := newProperty("array", description)
	if items != nil {
		p.m["items"] = items
	}
	return p
}

// Nested creates an object property from an Object document.
func Nested(description string, object map[string]any) *Property {
	p := &Property{m: make(map[string]any, len(object)+1)}
	for k, v := range object {
		p.m[k] = v
	}
	if description != "" {
		p.m["description"] = description
	}
	return p
}

// Enum restricts the property to the given values.
func (p *Property) Enum(values ...any) *Property { return p.set("enum", values) }

// Min sets the inclusive minimum of a number or integer.
func (p *Property) Min(v float64) *Property { return p.set("minimum", v) }

// Max sets the inclusive maximum of a number or integer.
func (p *Property) Max(v float64) *Property { return p.set("maximum", v) }

// MinLength sets the minimum string length.
func (p *Property) MinLength(n int) *Property { return p.set("minLength", n) }

// MaxLength sets the maximum string length.
func (p *Property) MaxLength(n int) *Property { return p.set("maxLength", n) }

// Pattern sets a regular expression strings must match.
func (p *Property) Pattern(expr string) *Property { return p.set("pattern", expr) }

// Default documents the value assumed when the property is absent.
func (p *Property) Default(v any) *Property { return p.set("default", v) }

// Map returns the property's schema document.
func (p *Property) Map() map[string]any {
	return p.m
}

func (p *Property) set(key string, v any) *Property {
	p.m[key] = v
	return p
}
