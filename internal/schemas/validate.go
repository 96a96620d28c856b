// Package schemas validates LLM-produced JSON payloads before they are
// persisted or shown to users.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed facts_schema.json
var factsSchemaJSON []byte

var factsSchema = gojsonschema.NewBytesLoader(factsSchemaJSON)

// ValidateFacts checks a facts payload against the facts schema. Model
// output is untrusted; anything that fails here is rejected, not repaired.
func ValidateFacts(data []byte) error {
	result, err := gojsonschema.Validate(factsSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("facts validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("facts payload invalid: %s", strings.Join(problems, "; "))
}
