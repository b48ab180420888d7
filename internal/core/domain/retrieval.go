package domain

import "time"

// Candidate is one chunk surviving fusion, with the scores that put it
// there. LexicalScore and VectorScore are nil when the chunk did not
// appear in that ranking.
type Candidate struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// DocumentID identifies the parent document.
	DocumentID string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int

	// SectionTitle is the heading carried by the chunk, if any.
	SectionTitle string

	// SourceName is the display name of the originating document.
	SourceName string

	// Content is the chunk text.
	Content string

	// FusedScore is the reciprocal rank fusion score.
	FusedScore float64

	// LexicalScore is the raw BM25 score (lower is better), when present.
	LexicalScore *float64

	// VectorScore is the cosine similarity, when present.
	VectorScore *float64

	// UpdatedAt is the parent document's IndexedAt, used by the
	// session-scope recency bonus.
	UpdatedAt time.Time
}

// Citation maps a context marker [N] back to its chunk.
type Citation struct {
	// Marker is the 1-based index used in the context block.
	Marker int

	// ChunkID identifies the cited chunk.
	ChunkID string

	// DocumentID identifies the cited document.
	DocumentID string

	// SourceName is the display name used in the block header.
	SourceName string

	// SectionTitle is the heading used in the block header, if any.
	SectionTitle string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int
}

// RetrievalDebug is the per-request diagnostic envelope. It never
// influences ranking; it exists for logs and host inspection.
type RetrievalDebug struct {
	// Variants are the query variants actually searched.
	Variants []string

	// LexicalCandidates counts distinct chunks from all lexical lists.
	LexicalCandidates int

	// VectorCandidates counts distinct chunks from all vector lists.
	VectorCandidates int

	// FusedCandidates counts distinct chunks after fusion.
	FusedCandidates int

	// SelectedCandidates counts chunks kept after the MaxCandidates cap.
	SelectedCandidates int

	// ContextChunks counts chunks in the final block.
	ContextChunks int

	// Elapsed is the wall time of the retrieval.
	Elapsed time.Duration

	// Notes records degradations (lexical-only, scope fallback, deadline).
	Notes []string
}

// RetrievalResult is the terminal output of a retrieval run.
type RetrievalResult struct {
	// Chunks are the reranked survivors, in context order.
	Chunks []Candidate

	// ContextText is the bounded, citation-marked context block.
	// Empty when Grounded is false.
	ContextText string

	// Citations map markers to chunks, in block order.
	Citations []Citation

	// UsedScope is the scope the search actually ran under.
	UsedScope Scope

	// Grounded is true when at least one candidate survived rerank.
	Grounded bool

	// Debug is the diagnostic envelope.
	Debug RetrievalDebug
}

// EmptyRetrievalResult returns an ungrounded result for skipped or
// failed retrievals, with an explanatory note.
func EmptyRetrievalResult(scope Scope, note string) RetrievalResult {
	res := RetrievalResult{UsedScope: scope, Grounded: false}
	if note != "" {
		res.Debug.Notes = []string{note}
	}
	return res
}
