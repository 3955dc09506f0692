package toolexecutor

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// generateJSONSchema generates a JSON Schema from tool parameters.
// Extra properties are allowed: requests may carry more params than a tool declares.
func generateJSONSchema(params []Param) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(params))
	required := make([]string, 0, len(params))

	for _, param := range params {
		paramSchema := map[string]interface{}{}
		if param.Type != "" {
			paramSchema["type"] = param.Type
		}
		properties[param.Name] = paramSchema
		required = append(required, param.Name)
	}

	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}
