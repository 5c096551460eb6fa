package config

import "github.com/invopop/jsonschema"

// Schema describes the config file format. Fields without omitempty are required.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
