// Package mcp provides an MCP (Model Context Protocol) server adapter
// for the engine. It lets AI assistants index Markdown into the local
// corpus and run scope-enforced retrieval over it.
package mcp

import "errors"

// ErrMissingEngine is returned when the engine port is not provided.
var ErrMissingEngine = errors.New("mcp: engine is required")
