// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports).
//
// Services in internal/core/services depend on these interfaces, never
// on concrete adapters. Adapters under internal/adapters/driven
// implement them:
//
//   - Storage ports: SQLite (durable) and memory (tests)
//   - EmbeddingProvider: OpenRouter-compatible embeddings endpoint
//   - QueryRewriter / Reranker: chat-completions capability
//   - MarkdownConverter: host-supplied PDF conversion
//   - DirectoryWatcher: fsnotify event source
//   - ConfigStore: TOML file configuration
//   - Logger / Clock: observability and testable time
package driven
