// Package configs embeds the configuration template written by
// `codechat init` so it ships inside every binary.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .codechat.yaml in the project root.
// Every key is optional; omitted keys fall back to the built-in defaults
// (internal/config NewConfig).
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
