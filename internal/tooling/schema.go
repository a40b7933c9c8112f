package tooling

import (
	"encoding/json"
	"fmt"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// marshalFunc is the JSON marshaler used by GenerateSchema. Package-level so
// tests can inject a failing marshaler to cover the error return path.
var marshalFunc = func(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// GenerateSchema generates a JSON Schema string from a Go struct using
// invopop/jsonschema reflection.
func GenerateSchema(input interface{}) string {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(input)
	// Draft 2020-12 $schema/$id are noise for function-calling APIs.
	schema.Version = ""
	schema.ID = ""

	schemaBytes, err := marshalFunc(schema)
	if err != nil {
		return ""
	}
	return string(schemaBytes)
}

// schemaURL names compiled schemas. A relative name would resolve against the
// working directory and leak host paths into validation errors.
const schemaURL = "mem://schema.json"

// ValidateAgainstSchema validates JSON input against a JSON Schema string.
func ValidateAgainstSchema(input json.RawMessage, schemaStr string) error {
	schema, err := jsonschema.CompileString(schemaURL, schemaStr)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var inputData interface{}
	if err := json.Unmarshal(input, &inputData); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}

	if err := schema.Validate(inputData); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}
