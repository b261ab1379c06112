package config

import _ "embed"

//go:embed config.schema.json
var schemaJSON []byte
