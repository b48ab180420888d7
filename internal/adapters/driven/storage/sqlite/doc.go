// Package sqlite provides a unified SQLite-based implementation of the
// engine's driven storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO, enabling easy cross-compilation. It implements
// multiple store interfaces through a single database connection:
//
//   - WorkspaceStore: workspace rows, including the GLOBAL sentinel
//   - DocumentStore: document, chunk, and session-link persistence
//   - EmbeddingStore: chunk vector persistence
//   - RegistryStore: watcher bookkeeping per source path
//   - SearchStore: scope-predicated lexical and vector retrieval
//
// # Schema
//
// The database schema is managed through versioned migrations stored in
// the migrations/ directory. Each migration is a pair of .up.sql and
// .down.sql files. The chunks_fts virtual table mirrors chunk content
// for BM25 ranking and is kept synchronized with the chunks table
// inside the same write transaction.
//
// # Data Location
//
// By default, the database is stored at ~/.ragengine/data/rag.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode: writes are serialized, readers
// proceed concurrently with a single writer.
package sqlite
