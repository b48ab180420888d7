package domain

import "time"

// GlobalWorkspaceID is the sentinel workspace holding the shared corpus.
// It always exists after storage initialisation.
const GlobalWorkspaceID = "GLOBAL"

// Workspace is a top-level container for documents.
// All workspaces other than GLOBAL are user-defined.
type Workspace struct {
	// ID is the unique identifier for the workspace.
	ID string

	// Name is the human-readable name.
	Name string

	// CreatedAt is when the workspace was created.
	CreatedAt time.Time
}

// SourceType classifies where a document's content came from.
type SourceType string

const (
	// SourcePDF is Markdown produced by the external PDF converter.
	SourcePDF SourceType = "pdf"

	// SourceArtifact is a text artifact produced inside the assistant.
	SourceArtifact SourceType = "artifact"
)

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	switch t {
	case SourcePDF, SourceArtifact:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t SourceType) String() string {
	return string(t)
}

// EmbeddingState records the outcome of the embedding phase for a document.
type EmbeddingState string

const (
	// EmbeddingDisabled means no provider was configured when the document was indexed.
	EmbeddingDisabled EmbeddingState = "disabled"

	// EmbeddingIndexed means vectors exist for every chunk under the recorded model.
	EmbeddingIndexed EmbeddingState = "indexed"

	// EmbeddingFailed means the provider errored; the document is lexical-only.
	EmbeddingFailed EmbeddingState = "failed"

	// EmbeddingSkipped means embedding was intentionally bypassed (e.g. empty content).
	EmbeddingSkipped EmbeddingState = "skipped"
)

// IsValid returns true if the embedding state is recognised.
func (s EmbeddingState) IsValid() bool {
	switch s {
	case EmbeddingDisabled, EmbeddingIndexed, EmbeddingFailed, EmbeddingSkipped:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s EmbeddingState) String() string {
	return string(s)
}

// Document is a logical piece of indexed Markdown content.
// (WorkspaceID, ContentHash) uniquely identifies a corpus entry:
// re-ingesting identical content refreshes IndexedAt instead of
// creating a new row.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// WorkspaceID links to the owning workspace.
	WorkspaceID string

	// ArtifactEntryID optionally links to an external artifact table row.
	ArtifactEntryID *string

	// SourceType classifies the origin of the content.
	SourceType SourceType

	// SourceName is the display name used in citations.
	SourceName string

	// SourcePath is the filesystem origin, when there is one.
	SourcePath string

	// ContentHash is the lowercase hex SHA-256 of the canonicalised Markdown.
	ContentHash string

	// FileSize is the size in bytes of the originating file (0 when unknown).
	FileSize int64

	// IndexedAt is when the document was last (re)indexed.
	IndexedAt time.Time

	// StaleAt, when set, marks the document as a cleanup candidate.
	StaleAt *time.Time

	// EmbeddingState records the outcome of the embedding phase.
	EmbeddingState EmbeddingState

	// EmbeddingModel is the model identifier the vectors were generated with.
	EmbeddingModel string

	// EmbeddingError holds the last embedding failure message, if any.
	EmbeddingError string
}

// DocumentSession links a document to a chat session for local-scope
// retrieval. Rows cascade-delete with either side.
type DocumentSession struct {
	// DocumentID is the linked document.
	DocumentID string

	// SessionID is the linked session.
	SessionID string

	// CreatedAt is when the attachment was made.
	CreatedAt time.Time
}

// Chunk is a contiguous slice of a document's Markdown.
// Per document, ChunkIndex is dense from 0 to N-1.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent document.
	DocumentID string

	// ChunkIndex is the 0-based position within the document.
	ChunkIndex int

	// SectionTitle is the most recent Markdown heading above the chunk.
	SectionTitle string

	// Content is the chunk text.
	Content string

	// TokenCount is an estimate of the chunk's token length.
	TokenCount int
}

// Embedding is a dense vector attached to a chunk.
// The persisted form is little-endian IEEE-754 float32, 4*Dims bytes.
type Embedding struct {
	// ChunkID is the chunk the vector belongs to.
	ChunkID string

	// Model is the embedding model identifier.
	Model string

	// Dims is the vector dimensionality.
	Dims int

	// Vector is the decoded vector, len(Vector) == Dims.
	Vector []float32

	// CreatedAt is when the vector was generated.
	CreatedAt time.Time
}

// Validate checks the vector length invariant.
func (e Embedding) Validate() error {
	if e.Dims <= 0 {
		return ErrIntegrity
	}
	if len(e.Vector) != e.Dims {
		return ErrIntegrity
	}
	return nil
}
