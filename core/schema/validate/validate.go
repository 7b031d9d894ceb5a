package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// Validator holds one compiled schema and can be reused across documents.
type Validator struct {
	schema *jsonschema.Schema
}

func Compile(schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

func (validator *Validator) ValidateJSON(data []byte) error {
	result := validator.schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors))
	for keyword, evaluationErr := range result.Errors {
		details = append(details, fmt.Sprintf("%s: %v", keyword, evaluationErr))
	}
	sort.Strings(details)
	return fmt.Errorf("schema validation failed: %s", strings.Join(details, "; "))
}
