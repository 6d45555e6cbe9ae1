// Package configs provides the embedded configuration template written
// by `membank init`. Embedding it at build time keeps the template
// available in every distribution, source builds included.
package configs

import _ "embed"

// ConfigTemplate is the commented configuration template. Every key is
// optional; the file documents the built-in defaults without changing
// them.
//
//go:embed config.example.yaml
var ConfigTemplate string
