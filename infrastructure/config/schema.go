package config

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
)

// SchemaID is the $id of the generated configuration schema.
const SchemaID = "https://github.com/felixgeelhaar/agent-phoenix/phoenix-config.schema.json"

var durationType = reflect.TypeOf(domainconfig.Duration(0))

// GenerateSchema reflects the JSON Schema for domainconfig.Config.
// Nothing is required because every field has a default.
func GenerateSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Description: "Go duration string, e.g. 5s or 1m30s",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
				}
			}
			return nil
		},
	}
	s := r.Reflect(&domainconfig.Config{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "Phoenix Configuration"
	s.Description = "Configuration for the phoenix capability-registration supervisor"
	return s
}

// SchemaJSON returns the configuration schema as indented JSON.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %w", domainconfig.ErrSchema, err)
	}
	return string(data), nil
}
