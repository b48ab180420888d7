// Package domain defines the core business entities for the RAG engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Workspace: A top-level corpus container (GLOBAL is reserved)
//   - Document: An indexed piece of Markdown content
//   - Chunk: A retrieval unit within a document
//   - Embedding: A dense vector attached to a chunk
//   - RegistryEntry: Watcher bookkeeping for a filesystem path
//   - Scope: The predicate restricting retrieval visibility
//   - RetrievalResult: The cited context block returned to callers
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
