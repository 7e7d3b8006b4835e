package speech

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// toolSyncSchema constrains tool_sync payloads before they reach the engine.
// The schema checks shape only; value-level rules (passenger range, time
// phrases) belong to the engine's patch extractor, which drops bad values
// instead of rejecting the turn.
const toolSyncSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title": "tool_sync payload",
	"type": "object",
	"properties": {
		"pickup": {"type": "string"},
		"destination": {"type": "string"},
		"passengers": {"type": "integer", "minimum": 0},
		"pickup_time": {"type": "string"},
		"intent": {"type": "string"},
		"special_instructions": {"type": "string"}
	},
	"additionalProperties": false
}`

// Validator checks tool sync payloads against the compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the tool sync schema.
func NewValidator() (*Validator, error) {
	var doc any
	if err := json.Unmarshal([]byte(toolSyncSchema), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal tool sync schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool_sync.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("tool_sync.json")
	if err != nil {
		return nil, fmt.Errorf("compile tool sync schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks one raw payload. It returns nil only when the payload is
// well-formed JSON conforming to the schema.
func (v *Validator) Validate(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("payload is required")
	}
	var inst any
	if err := json.Unmarshal(payload, &inst); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return v.schema.Validate(inst)
}
