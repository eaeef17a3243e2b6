package text

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

// Type is a JSON schema type.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
)

// Schema is the provider-neutral subset of JSON Schema understood by every
// backend: typed objects with required properties, arrays with one item
// schema, and scalar leaves with descriptions.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	// Order lists property names in the order they should be generated.
	// Properties missing from Order follow in sorted order.
	Order    []string
	Required []string
	Items    *Schema
}

// PropertyNames returns the object's property names in generation order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for _, n := range s.Order {
		if _, ok := s.Properties[n]; ok {
			names = append(names, n)
		}
	}
	var rest []string
	for n := range s.Properties {
		if !slices.Contains(names, n) {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// JSONSchema renders s as a JSON Schema document. Objects are closed
// (additionalProperties false), which strict structured-output modes
// require.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	switch s.Type {
	case TypeObject:
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		out["required"] = append([]string{}, s.Required...)
		out["additionalProperties"] = false
	case TypeArray:
		if s.Items != nil {
			out["items"] = s.Items.JSONSchema()
		}
	}
	return out
}

// String returns the compact JSON Schema text, for embedding in prompts.
func (s *Schema) String() string {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ErrSchemaMismatch is wrapped by every validation failure.
var ErrSchemaMismatch = errors.New("text: response does not match schema")

// Validate checks a decoded JSON value (as produced by encoding/json into
// an any) against s. Every problem is reported; unknown object properties
// are allowed.
func (s *Schema) Validate(v any) error {
	var errs []error
	s.validate("$", v, &errs)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSchemaMismatch, errors.Join(errs...))
}

// ValidateJSON decodes raw and validates it against s.
func (s *Schema) ValidateJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return s.Validate(v)
}

func (s *Schema) validate(path string, v any, errs *[]error) {
	mismatch := func() {
		*errs = append(*errs, fmt.Errorf("%s: want %s, got %s", path, s.Type, kindOf(v)))
	}
	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			mismatch()
			return
		}
		for _, req := range s.Required {
			if _, ok := obj[req]; !ok {
				*errs = append(*errs, fmt.Errorf("%s: missing required field %q", path, req))
			}
		}
		for _, name := range s.PropertyNames() {
			if pv, ok := obj[name]; ok {
				s.Properties[name].validate(path+"."+name, pv, errs)
			}
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			mismatch()
			return
		}
		if s.Items != nil {
			for i, item := range arr {
				s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item, errs)
			}
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			mismatch()
		}
	case TypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			mismatch()
		}
	case TypeNumber:
		if _, ok := v.(float64); !ok {
			mismatch()
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			mismatch()
		}
	}
}

func kindOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if x == math.Trunc(x) {
			return "integer"
		}
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
