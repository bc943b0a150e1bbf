package llm

import (
	"encoding/json"
	"fmt"
)

// JSONSchema implements json.Marshaler for OpenAI's JSON Schema format and
// doubles as the gateway-side validator for structured responses.
// The alias type prevents infinite recursion during marshaling.
type JSONSchema struct {
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`

	// Nullable marks a key the model may set to null. Strict structured
	// outputs demand every declared property in required, so optionality is
	// expressed as a type union with "null" instead of omission.
	Nullable bool `json:"-"`
}

// MarshalJSON implements json.Marshaler for JSONSchema.
// It uses type alias to prevent infinite recursion.
func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	if !s.Nullable {
		return json.Marshal((*alias)(s))
	}
	return json.Marshal(struct {
		*alias
		Type [2]string `json:"type"`
	}{(*alias)(s), [2]string{s.Type, "null"}})
}

// Validate checks a decoded JSON value against the schema: type, required
// object keys, and enum membership. Unknown object keys are tolerated.
func (s *JSONSchema) Validate(value any) error {
	if value == nil {
		if s.Nullable {
			return nil
		}
		return fmt.Errorf("unexpected null")
	}
	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for _, key := range s.Required {
			if _, present := obj[key]; !present {
				return fmt.Errorf("missing required key %q", key)
			}
		}
		for key, sub := range s.Properties {
			if v, present := obj[key]; present && v != nil {
				if err := sub.Validate(v); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.Validate(item); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
			}
		}
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(s.Enum) > 0 {
			for _, allowed := range s.Enum {
				if str == allowed {
					return nil
				}
			}
			return fmt.Errorf("value %q not in enum", str)
		}
	case "number":
		switch value.(type) {
		case float64, json.Number:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("expected integer, got %v", v)
			}
		case json.Number:
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}
