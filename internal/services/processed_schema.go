package services

import (
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// processedDataSchema describes the processedData string of an upload record.
// Page fields accept anything a model might write for a page; only the shape of
// the payload is enforced.
const processedDataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["files"],
    "properties": {
      "files": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["filename", "sentence"],
          "properties": {
            "filename": {"type": "string"},
            "sentence": {"type": "string"},
            "start_page": {"type": ["number", "string", "null"]},
            "end_page": {"type": ["number", "string", "null"]},
            "page_numbers": {
              "type": ["array", "string", "null"],
              "items": {"type": ["number", "string", "null"]}
            }
          }
        }
      }
    }
  }
}`

func compileProcessedDataSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(processedDataSchema))
	if err != nil {
		return nil, fmt.Errorf("compile processedData schema: %w", err)
	}
	return schema, nil
}

func validateProcessedData(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("processedData failed schema validation: %v", result.Errors)
}
