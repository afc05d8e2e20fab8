// Package handlers implements the produced HTTP surface of §6: task
// admission/status/listing and the webhook ingress routes. Grounded on
// livepeer-catalyst-api/handlers: a *Collection struct holding
// dependencies (handlers.go mirrors DMSAPIHandlersCollection), request
// schemas compiled once at init (json_schema.go mirrors
// compileJsonSchemas's panic-on-bad-schema-at-startup pattern).
package handlers

import "github.com/xeipuuv/gojsonschema"

const createTaskRequestSchema = `{
	"type": "object",
	"properties": {
		"source_type": { "type": "string", "enum": ["upload", "url", "youtube"] },
		"source_url": { "type": "string", "minLength": 1 },
		"size_bytes": { "type": "integer", "minimum": 0 },
		"is_trial": { "type": "boolean" },
		"params": {
			"type": "object",
			"additionalProperties": { "type": "string" }
		}
	},
	"required": ["source_type", "source_url"]
}`

var inputSchemas = map[string]string{
	"CreateTask": createTaskRequestSchema,
}

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			// fix schema text -- a bad schema here is a programmer error,
			// not a request-time condition.
			panic(err)
		}
		compiled[name] = schema
	}
	return compiled
}

var compiledSchemas = compileJSONSchemas()
