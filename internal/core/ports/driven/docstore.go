package driven

import (
	"context"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

// WorkspaceStore persists workspaces. The GLOBAL workspace is seeded by
// storage initialisation and must never be deleted.
type WorkspaceStore interface {
	// EnsureWorkspace creates the workspace if it does not exist.
	EnsureWorkspace(ctx context.Context, ws domain.Workspace) error

	// GetWorkspace retrieves a workspace by ID.
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)
}

// DocumentStore persists documents, their chunks, and session links.
// Chunk writes mirror into the lexical index inside the same
// transaction: readers never observe a chunk without its lexical row.
type DocumentStore interface {
	// SaveDocument inserts a document or refreshes an existing row
	// keyed by (workspace_id, content_hash).
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetDocumentByHash retrieves a document by its corpus identity.
	GetDocumentByHash(ctx context.Context, workspaceID, contentHash string) (*domain.Document, error)

	// TouchDocument advances indexed_at and clears stale_at.
	TouchDocument(ctx context.Context, id string, indexedAt time.Time) error

	// SetEmbeddingState records the outcome of the embedding phase.
	SetEmbeddingState(ctx context.Context, id string, state domain.EmbeddingState, model, errMsg string) error

	// MarkStale sets stale_at, making the document a cleanup candidate.
	MarkStale(ctx context.Context, id string, staleAt time.Time) error

	// ReplaceChunks atomically swaps the document's chunks and their
	// lexical rows for the given ordered set.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk, sourceName string) error

	// GetChunks returns the document's chunks ordered by chunk_index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// DeleteDocument removes the document; chunks, lexical rows,
	// embeddings, and session links cascade.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns documents in a workspace, most recently
	// indexed first.
	ListDocuments(ctx context.Context, workspaceID string) ([]domain.Document, error)

	// LinkSession attaches a document to a session.
	LinkSession(ctx context.Context, documentID, sessionID string, at time.Time) error

	// ListStaleDocuments returns session-linked documents whose
	// stale_at is before the cutoff. Documents without a session link
	// are never returned.
	ListStaleDocuments(ctx context.Context, cutoff time.Time) ([]domain.Document, error)
}

// EmbeddingStore persists chunk vectors. Vector writes happen after the
// chunk transaction commits; a chunk may briefly lack its vector and
// retrieval treats it as lexical-only.
type EmbeddingStore interface {
	// UpsertEmbeddings writes vectors keyed by chunk_id, replacing any
	// vector a chunk already has.
	UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error

	// CountEmbeddings reports how many of the document's chunks carry a
	// vector under the given model.
	CountEmbeddings(ctx context.Context, documentID, model string) (int, error)

	// DeleteEmbeddings removes all vectors for a document.
	DeleteEmbeddings(ctx context.Context, documentID string) error
}

// RegistryStore persists watcher bookkeeping. The primary key is
// (source_path, content_hash); a new hash for a path replaces the old
// row.
type RegistryStore interface {
	// UpsertEntry inserts or replaces the entry for its path.
	UpsertEntry(ctx context.Context, entry domain.RegistryEntry) error

	// GetEntry retrieves the entry for a path.
	GetEntry(ctx context.Context, sourcePath string) (*domain.RegistryEntry, error)

	// MarkSeen refreshes last_seen_at without touching status.
	MarkSeen(ctx context.Context, sourcePath string, at time.Time) error

	// SetStatus transitions the entry's status, recording the error
	// message (empty clears it) and, for indexed, last_indexed_at.
	SetStatus(ctx context.Context, sourcePath string, status domain.RegistryStatus, errMsg string, at time.Time) error

	// IncrementRetry bumps retry_count and returns the new value.
	IncrementRetry(ctx context.Context, sourcePath string) (int, error)

	// ListEntries returns entries, optionally filtered by status,
	// ordered by source_path.
	ListEntries(ctx context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error)

	// ResetFailed moves failed entries back to pending with a zero
	// retry count, returning how many changed.
	ResetFailed(ctx context.Context) (int, error)
}
