package mcp

import (
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// Ports aggregates the port interfaces the MCP server drives.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Engine exposes indexing, retrieval, and registry operations.
	Engine driving.Engine

	// Documents optionally backs the document content resource.
	Documents driven.DocumentStore
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Engine == nil {
		return ErrMissingEngine
	}
	// Documents is optional; the content resource degrades without it.
	return nil
}
