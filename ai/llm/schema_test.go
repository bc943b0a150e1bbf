package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaMarshalNullable(t *testing.T) {
	schema := &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"name": {Type: "string"},
			"slot": {Type: "string", Nullable: true},
		},
		Required: []string{"name", "slot"},
	}

	raw, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded struct {
		Properties map[string]struct {
			Type json.RawMessage `json:"type"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.JSONEq(t, `"string"`, string(decoded.Properties["name"].Type))
	assert.JSONEq(t, `["string","null"]`, string(decoded.Properties["slot"].Type))
}

func TestSchemaValidateNull(t *testing.T) {
	schema := &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"name": {Type: "string"},
			"slot": {Type: "string", Nullable: true},
		},
		Required: []string{"name", "slot"},
	}

	// A required nullable key may carry null.
	var value map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","slot":null}`), &value))
	assert.NoError(t, schema.Validate(value))

	// But it must still be present.
	value = nil
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a"}`), &value))
	assert.Error(t, schema.Validate(value))

	// Null in a non-nullable position is rejected.
	nonNullable := &JSONSchema{Type: "string"}
	assert.Error(t, nonNullable.Validate(nil))
}
