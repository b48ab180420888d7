package driving

import (
	"context"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

// IndexRequest describes one document to ingest. Markdown is the
// already-converted content; conversion happens before the engine.
type IndexRequest struct {
	// WorkspaceID is the owning workspace (GLOBAL for the shared corpus).
	WorkspaceID string

	// SourceType classifies the content origin.
	SourceType domain.SourceType

	// SourceName is the display name used in citations.
	SourceName string

	// SourcePath is the filesystem origin, when there is one.
	SourcePath string

	// ArtifactEntryID optionally links to an external artifact row.
	ArtifactEntryID *string

	// Markdown is the full document content.
	Markdown string

	// SessionID, when set, attaches the document to a session for
	// local-scope retrieval.
	SessionID string

	// FileSize is the originating file's size in bytes (0 if unknown).
	FileSize int64

	// ForceReindex replaces chunks and vectors even when the content
	// hash is already known.
	ForceReindex bool
}

// IndexResult reports what ingestion did.
type IndexResult struct {
	// DocumentID is the stored document.
	DocumentID string

	// Deduplicated is true when the content hash was already indexed
	// and only timestamps were refreshed.
	Deduplicated bool

	// ChunkCount is the number of chunks persisted (0 when deduplicated).
	ChunkCount int

	// EmbeddingState is the outcome of the embedding phase.
	EmbeddingState domain.EmbeddingState

	// Warning carries a non-fatal degradation, such as an unavailable
	// embedding provider. Empty when everything succeeded.
	Warning string
}

// RetrieveRequest describes one retrieval run.
type RetrieveRequest struct {
	// Query is the user text.
	Query string

	// Scope is the visibility predicate.
	Scope domain.Scope

	// Settings is the read-only snapshot for this request.
	Settings domain.RetrievalSettings

	// Variants optionally carries pre-computed query variants (the
	// rewrite step of the subgraph). The original query is searched
	// regardless.
	Variants []string
}

// Engine is the external interface of the RAG engine (the operations
// a host application calls).
type Engine interface {
	// IndexDocument ingests one Markdown document.
	IndexDocument(ctx context.Context, req IndexRequest) (IndexResult, error)

	// Retrieve runs scope-enforced hybrid retrieval.
	Retrieve(ctx context.Context, req RetrieveRequest) (domain.RetrievalResult, error)

	// EnqueueFile hashes the file and queues it for indexing,
	// returning the registry entry. Fails fast with ErrQueueFull when
	// the indexing queue cannot accept work.
	EnqueueFile(ctx context.Context, path string) (*domain.RegistryEntry, error)

	// Rescan walks the directory once, enqueueing unknown content, and
	// returns how many files were queued.
	Rescan(ctx context.Context, dir string) (int, error)

	// ListRegistry returns watcher bookkeeping, optionally filtered.
	ListRegistry(ctx context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error)

	// ResetFailedRegistry moves failed registry entries back to pending
	// with a zero retry count so the next rescan picks them up again.
	// Returns how many entries changed.
	ResetFailedRegistry(ctx context.Context) (int, error)

	// CleanupStale removes session documents whose stale_at is older
	// than the retention window. A nil override uses the configured
	// retention days.
	CleanupStale(ctx context.Context, retentionDaysOverride *int) (int, error)

	// ListDocuments returns the documents in a workspace.
	ListDocuments(ctx context.Context, workspaceID string) ([]domain.Document, error)

	// RemoveDocument deletes a document and all derived rows.
	RemoveDocument(ctx context.Context, documentID string) error

	// MarkDocumentStale tombstones a session document for cleanup.
	MarkDocumentStale(ctx context.Context, documentID string) error
}
