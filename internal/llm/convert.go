package llm

import (
	"encoding/json"
	"fmt"
)

// marshalFunc is json.Marshal. Package-level var for test injection.
var marshalFunc = json.Marshal

// encodeArgs renders tool-call arguments as a JSON object string. Nil args
// become "{}" since every provider expects an object.
func encodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	raw, err := marshalFunc(args)
	if err != nil {
		return "", fmt.Errorf("encode tool args: %w", err)
	}
	return string(raw), nil
}

// decodeArgs parses a JSON object string into tool-call arguments. Empty
// input yields an empty map.
func decodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode tool args: %w", err)
	}
	return args, nil
}

// schemaMap decodes a tool input schema into a generic map. A missing schema
// becomes an empty object schema.
func schemaMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode tool schema: %w", err)
	}
	return m, nil
}
