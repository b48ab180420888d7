// Package driving provides interfaces for external actors (primary/
// inbound ports): the host application, the CLI, and the MCP server
// all drive the engine through these.
package driving
