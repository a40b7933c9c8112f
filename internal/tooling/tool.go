package tooling

import (
	"context"
	"encoding/json"
)

// SchemaTool is a tool whose input is described by a JSON Schema generated from
// a Go struct via invopop/jsonschema. The tool server advertises Definition()
// over MCP and validates incoming arguments before calling Call().
type SchemaTool interface {
	// Name returns the unique tool name used in function-calling.
	Name() string
	// Description returns a human-readable description for the engine.
	Description() string
	// Definition returns the JSON Schema string for the tool's input struct.
	Definition() string
	// Call executes the tool with already-validated JSON arguments and returns
	// the text payload. A returned error becomes a tool-level error result.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// decodeArgs validates args against the tool's schema and decodes them into v.
func decodeArgs(t SchemaTool, args json.RawMessage, v any) error {
	if err := ValidateAgainstSchema(args, t.Definition()); err != nil {
		return err
	}
	return json.Unmarshal(args, v)
}
