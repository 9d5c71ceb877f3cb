package middleware

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	contextutils "studyprogress/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"
)

//go:embed schemas/requests.yaml
var requestSchemasYAML []byte

// SchemaLoader holds compiled request body schemas and the routes they guard
type SchemaLoader struct {
	schemas map[string]*gojsonschema.Schema
	routes  map[string]string
}

// NewSchemaLoader creates an empty schema loader
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		schemas: make(map[string]*gojsonschema.Schema),
		routes:  make(map[string]string),
	}
}

// DefaultSchemaLoader loads the request schemas bundled with the binary
func DefaultSchemaLoader() (*SchemaLoader, error) {
	loader := NewSchemaLoader()
	if err := loader.LoadSchemas(requestSchemasYAML); err != nil {
		return nil, err
	}
	return loader, nil
}

// LoadSchemas parses a YAML document with a definitions section and a routes section.
// Every definition is compiled as draft-07 with the full definitions map in scope for $ref resolution.
func (sl *SchemaLoader) LoadSchemas(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return contextutils.WrapError(err, "failed to parse request schemas as YAML")
	}

	rawDefinitions, ok := doc["definitions"].(map[interface{}]interface{})
	if !ok {
		return contextutils.ErrorWithContextf("no definitions section found in request schemas")
	}

	converted, err := convertToJSONCompatible(rawDefinitions)
	if err != nil {
		return contextutils.WrapError(err, "failed to convert request schemas")
	}
	definitions := converted.(map[string]interface{})

	for name := range definitions {
		completeSchemaDoc := map[string]interface{}{
			"$schema":     "http://json-schema.org/draft-07/schema#",
			"definitions": definitions,
			"$ref":        "#/definitions/" + name,
		}

		schemaBytes, err := json.Marshal(completeSchemaDoc)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to marshal schema %s", name)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to load schema %s", name)
		}
		sl.schemas[name] = schema
	}

	if rawRoutes, ok := doc["routes"].(map[interface{}]interface{}); ok {
		for k, v := range rawRoutes {
			route, ok := k.(string)
			if !ok {
				return contextutils.ErrorWithContextf("route key is not a string: %v", k)
			}
			schemaName, ok := v.(string)
			if !ok {
				return contextutils.ErrorWithContextf("route %s does not name a schema", route)
			}
			if _, exists := sl.schemas[schemaName]; !exists {
				return contextutils.ErrorWithContextf("route %s references unknown schema %s", route, schemaName)
			}
			sl.routes[routeKey(strings.SplitN(route, " ", 2)...)] = schemaName
		}
	}

	return nil
}

func routeKey(parts ...string) string {
	if len(parts) != 2 {
		return strings.Join(parts, " ")
	}
	return strings.ToUpper(strings.TrimSpace(parts[0])) + " " + strings.TrimSpace(parts[1])
}

// SchemaFor returns the schema name registered for a method and gin route pattern
func (sl *SchemaLoader) SchemaFor(method, fullPath string) (string, bool) {
	name, ok := sl.routes[routeKey(method, fullPath)]
	return name, ok
}

// SchemaNames lists the loaded definitions in sorted order
func (sl *SchemaLoader) SchemaNames() []string {
	names := make([]string, 0, len(sl.schemas))
	for name := range sl.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertToJSONCompatible converts yaml.v2 maps to map[string]interface{}.
// A nullable: true marker becomes a union with null.
func convertToJSONCompatible(data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case map[interface{}]interface{}:
		result := make(map[string]interface{})
		hasNullable := false

		for k, val := range v {
			keyStr, ok := k.(string)
			if !ok {
				return nil, contextutils.ErrorWithContextf("key is not a string: %v", k)
			}

			if keyStr == "nullable" {
				if nullable, ok := val.(bool); ok && nullable {
					hasNullable = true
				}
				continue
			}

			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[keyStr] = convertedVal
		}

		if hasNullable {
			if ref, hasRef := result["$ref"].(string); hasRef {
				result["oneOf"] = []interface{}{
					map[string]interface{}{"$ref": ref},
					map[string]interface{}{"type": "null"},
				}
				delete(result, "$ref")
			} else if typeVal, hasType := result["type"].(string); hasType {
				result["type"] = []interface{}{typeVal, "null"}
			}
		}

		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			convertedVal, err := convertToJSONCompatible(val)
			if err != nil {
				return nil, err
			}
			result[i] = convertedVal
		}
		return result, nil
	default:
		return data, nil
	}
}

// ValidateData validates data against a named schema.
// Violations come back as a VALIDATION_FAILED AppError listing every failing field.
func (sl *SchemaLoader) ValidateData(data interface{}, schemaName string) error {
	schema, exists := sl.schemas[schemaName]
	if !exists {
		return contextutils.ErrorWithContextf("schema %s not found", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return contextutils.WrapError(err, "validation error")
	}

	if !result.Valid() {
		validationErrors := make([]string, 0, len(result.Errors()))
		for _, validationErr := range result.Errors() {
			validationErrors = append(validationErrors, fmt.Sprintf("%s: %s", validationErr.Field(), validationErr.Description()))
		}
		return contextutils.NewAppError(
			contextutils.ErrorCodeValidationFailed,
			contextutils.SeverityWarn,
			contextutils.ErrValidationFailed.Message,
			strings.Join(validationErrors, "; "),
		)
	}

	return nil
}
