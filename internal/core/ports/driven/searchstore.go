package driven

import (
	"context"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

// LexicalHit is a BM25 match. Score ascends: lower is better.
type LexicalHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the raw bm25() value.
	Score float64
}

// VectorRecord is a stored embedding surfaced for exact cosine scoring.
type VectorRecord struct {
	// ChunkID is the owning chunk.
	ChunkID string

	// Vector is the decoded embedding.
	Vector []float32
}

// ChunkDetails hydrates a candidate chunk for rerank and assembly.
type ChunkDetails struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// DocumentID identifies the parent document.
	DocumentID string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int

	// SectionTitle is the heading carried by the chunk, if any.
	SectionTitle string

	// SourceName is the parent document's display name.
	SourceName string

	// Content is the chunk text.
	Content string

	// UpdatedAt is the parent document's indexed_at.
	UpdatedAt time.Time
}

// SearchStore executes scope-predicated retrieval queries. The scope is
// enforced in SQL; results are never post-filtered.
type SearchStore interface {
	// SearchLexical runs a sanitised full-text match under the scope
	// and returns up to limit hits ordered by ascending bm25 score.
	// A degenerate query yields no hits, not an error.
	SearchLexical(ctx context.Context, query string, scope domain.Scope, limit int) ([]LexicalHit, error)

	// LoadEmbeddings returns every stored vector permitted by the scope
	// under the given model.
	LoadEmbeddings(ctx context.Context, scope domain.Scope, model string) ([]VectorRecord, error)

	// GetChunkDetails hydrates the given chunks. Unknown IDs are
	// silently absent from the result.
	GetChunkDetails(ctx context.Context, chunkIDs []string) ([]ChunkDetails, error)
}
