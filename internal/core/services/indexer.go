package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opencanvas/ragengine/internal/cache"
	"github.com/opencanvas/ragengine/internal/chunker"
	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
	"github.com/opencanvas/ragengine/internal/markdown"
)

// IndexerService ingests Markdown documents: canonicalise, hash, dedup
// against the corpus, chunk, persist, embed. Chunks and their lexical
// rows commit together; embeddings follow in a second transaction, so
// a document is lexically retrievable even when the provider is down.
type IndexerService struct {
	workspaces driven.WorkspaceStore
	documents  driven.DocumentStore
	embeddings driven.EmbeddingStore
	registry   driven.RegistryStore
	embedder   driven.EmbeddingProvider
	chunker    *chunker.Chunker
	caches     *cache.Caches
	clock      driven.Clock
	log        driven.Logger
}

// NewIndexerService creates a new indexer. The embedder may be nil, in
// which case documents are indexed lexically with embedding disabled.
func NewIndexerService(
	workspaces driven.WorkspaceStore,
	documents driven.DocumentStore,
	embeddings driven.EmbeddingStore,
	registry driven.RegistryStore,
	embedder driven.EmbeddingProvider,
	chnk *chunker.Chunker,
	caches *cache.Caches,
	clock driven.Clock,
	log driven.Logger,
) *IndexerService {
	if chnk == nil {
		chnk = chunker.New()
	}
	return &IndexerService{
		workspaces: workspaces,
		documents:  documents,
		embeddings: embeddings,
		registry:   registry,
		embedder:   embedder,
		chunker:    chnk,
		caches:     caches,
		clock:      clock,
		log:        log,
	}
}

// IndexDocument ingests one Markdown document.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (s *IndexerService) IndexDocument(ctx context.Context, req driving.IndexRequest) (driving.IndexResult, error) {
	// 1. Validate and canonicalise
	if req.WorkspaceID == "" {
		req.WorkspaceID = domain.GlobalWorkspaceID
	}
	if !req.SourceType.IsValid() {
		return driving.IndexResult{}, fmt.Errorf("source type %q: %w", req.SourceType, domain.ErrInvalidInput)
	}
	canonical := markdown.Canonicalize(req.Markdown)
	if canonical == "" {
		return driving.IndexResult{}, fmt.Errorf("empty document content: %w", domain.ErrInvalidInput)
	}
	if req.SourceName == "" {
		req.SourceName = markdown.ExtractTitle(canonical, req.SourcePath)
	}
	contentHash := markdown.Hash(canonical)
	now := s.clock.Now().UTC()

	// 2. Dedup against the corpus by (workspace_id, content_hash)
	existing, err := s.documents.GetDocumentByHash(ctx, req.WorkspaceID, contentHash)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return driving.IndexResult{}, fmt.Errorf("looking up document by hash: %w", err)
	}
	if existing != nil && !req.ForceReindex {
		return s.refreshExisting(ctx, existing, req)
	}

	if err := s.workspaces.EnsureWorkspace(ctx, domain.Workspace{
		ID:        req.WorkspaceID,
		Name:      req.WorkspaceID,
		CreatedAt: now,
	}); err != nil {
		return driving.IndexResult{}, fmt.Errorf("ensuring workspace: %w", err)
	}

	doc := &domain.Document{
		ID:              uuid.New().String(),
		WorkspaceID:     req.WorkspaceID,
		ArtifactEntryID: req.ArtifactEntryID,
		SourceType:      req.SourceType,
		SourceName:      req.SourceName,
		SourcePath:      req.SourcePath,
		ContentHash:     contentHash,
		FileSize:        req.FileSize,
		IndexedAt:       now,
		EmbeddingState:  domain.EmbeddingDisabled,
	}
	if existing != nil {
		// Force reindex keeps the document identity so chunk and
		// session references survive the replacement.
		doc.ID = existing.ID
	}

	// 3. Chunk the Markdown
	pieces := s.chunker.Chunk(canonical)

	// 4. Deduplicate identical chunk contents, retaining the first
	// occurrence, and keep chunk_index dense afterwards
	seen := make(map[string]struct{}, len(pieces))
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		if _, dup := seen[piece.Content]; dup {
			continue
		}
		seen[piece.Content] = struct{}{}
		chunks = append(chunks, domain.Chunk{
			ID:           uuid.New().String(),
			DocumentID:   doc.ID,
			ChunkIndex:   len(chunks),
			SectionTitle: piece.SectionTitle,
			Content:      piece.Content,
			TokenCount:   piece.TokenCount,
		})
	}

	// 5. Persist document and chunks; lexical rows commit with chunks
	if err := s.documents.SaveDocument(ctx, doc); err != nil {
		return driving.IndexResult{}, fmt.Errorf("saving document: %w", err)
	}
	if err := s.documents.ReplaceChunks(ctx, doc.ID, chunks, doc.SourceName); err != nil {
		return driving.IndexResult{}, fmt.Errorf("replacing chunks: %w", err)
	}

	// 6. Embed in a second transaction; failure downgrades, never aborts
	state := domain.EmbeddingDisabled
	warning := ""
	switch {
	case len(chunks) == 0:
		state = domain.EmbeddingSkipped
		if err := s.documents.SetEmbeddingState(ctx, doc.ID, state, "", ""); err != nil {
			return driving.IndexResult{}, fmt.Errorf("recording embedding state: %w", err)
		}
	case s.embedder != nil:
		if req.ForceReindex {
			if err := s.embeddings.DeleteEmbeddings(ctx, doc.ID); err != nil {
				return driving.IndexResult{}, fmt.Errorf("clearing embeddings: %w", err)
			}
		}
		state, warning = s.embedChunks(ctx, doc, chunks)
	}

	// 7. Session link
	if req.SessionID != "" {
		if err := s.documents.LinkSession(ctx, doc.ID, req.SessionID, now); err != nil {
			return driving.IndexResult{}, fmt.Errorf("linking session: %w", err)
		}
	}

	// 8. Registry bookkeeping for file-backed documents
	s.markRegistryIndexed(ctx, req.SourcePath)

	s.log.Info("indexed document",
		"document_id", doc.ID,
		"workspace_id", doc.WorkspaceID,
		"source_name", doc.SourceName,
		"chunks", len(chunks),
		"embedding_state", string(state),
	)

	return driving.IndexResult{
		DocumentID:     doc.ID,
		ChunkCount:     len(chunks),
		EmbeddingState: state,
		Warning:        warning,
	}, nil
}

// refreshExisting handles a content hash already in the corpus: advance
// indexed_at, clear any stale tombstone, and regenerate embeddings when
// they are missing or were produced by a different model.
func (s *IndexerService) refreshExisting(ctx context.Context, doc *domain.Document, req driving.IndexRequest) (driving.IndexResult, error) {
	now := s.clock.Now().UTC()
	if err := s.documents.TouchDocument(ctx, doc.ID, now); err != nil {
		return driving.IndexResult{}, fmt.Errorf("refreshing document: %w", err)
	}

	state := doc.EmbeddingState
	warning := ""
	if s.embedder != nil && s.needsEmbeddingRetry(ctx, doc) {
		chunks, err := s.documents.GetChunks(ctx, doc.ID)
		if err != nil {
			return driving.IndexResult{}, fmt.Errorf("loading chunks: %w", err)
		}
		if len(chunks) > 0 {
			state, warning = s.embedChunks(ctx, doc, chunks)
		}
	}

	if req.SessionID != "" {
		if err := s.documents.LinkSession(ctx, doc.ID, req.SessionID, now); err != nil {
			return driving.IndexResult{}, fmt.Errorf("linking session: %w", err)
		}
	}
	s.markRegistryIndexed(ctx, req.SourcePath)

	s.log.Debug("document already indexed",
		"document_id", doc.ID,
		"content_hash", doc.ContentHash,
	)

	return driving.IndexResult{
		DocumentID:     doc.ID,
		Deduplicated:   true,
		EmbeddingState: state,
		Warning:        warning,
	}, nil
}

// needsEmbeddingRetry reports whether a known document should have its
// vectors regenerated without re-chunking.
func (s *IndexerService) needsEmbeddingRetry(ctx context.Context, doc *domain.Document) bool {
	model := s.embedder.ModelName()
	if doc.EmbeddingState != domain.EmbeddingIndexed || doc.EmbeddingModel != model {
		return true
	}
	chunks, err := s.documents.GetChunks(ctx, doc.ID)
	if err != nil {
		return false
	}
	count, err := s.embeddings.CountEmbeddings(ctx, doc.ID, model)
	if err != nil {
		return false
	}
	return count < len(chunks)
}

// embedChunks generates and stores vectors for the chunks, consulting
// the vector cache first. It records the outcome on the document and
// returns the resulting state with an optional caller-facing warning.
func (s *IndexerService) embedChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (domain.EmbeddingState, string) {
	model := s.embedder.ModelName()
	vectors := make([][]float32, len(chunks))
	var missing []int
	for i, chunk := range chunks {
		if s.caches != nil {
			key := cache.VectorKey{ContentHash: doc.ContentHash, Model: model, ChunkIndex: chunk.ChunkIndex}
			if vec, ok := s.caches.Vectors.Get(key); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = chunks[i].Content
		}
		embedded, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return s.recordEmbeddingFailure(ctx, doc.ID, model, err)
		}
		if len(embedded) != len(missing) {
			err := fmt.Errorf("provider returned %d vectors for %d chunks", len(embedded), len(missing))
			return s.recordEmbeddingFailure(ctx, doc.ID, model, err)
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
			if s.caches != nil {
				key := cache.VectorKey{ContentHash: doc.ContentHash, Model: model, ChunkIndex: chunks[i].ChunkIndex}
				s.caches.Vectors.Add(key, embedded[j])
			}
		}
	}

	now := s.clock.Now().UTC()
	rows := make([]domain.Embedding, len(chunks))
	for i, chunk := range chunks {
		rows[i] = domain.Embedding{
			ChunkID:   chunk.ID,
			Model:     model,
			Dims:      len(vectors[i]),
			Vector:    vectors[i],
			CreatedAt: now,
		}
	}
	if err := s.embeddings.UpsertEmbeddings(ctx, rows); err != nil {
		return s.recordEmbeddingFailure(ctx, doc.ID, model, err)
	}
	if err := s.documents.SetEmbeddingState(ctx, doc.ID, domain.EmbeddingIndexed, model, ""); err != nil {
		s.log.Warn("recording embedding state failed", "document_id", doc.ID, "error", err)
	}
	return domain.EmbeddingIndexed, ""
}

func (s *IndexerService) recordEmbeddingFailure(ctx context.Context, docID, model string, cause error) (domain.EmbeddingState, string) {
	s.log.Warn("embedding failed; document stays lexical-only",
		"document_id", docID,
		"model", model,
		"error", cause,
	)
	if err := s.documents.SetEmbeddingState(ctx, docID, domain.EmbeddingFailed, model, cause.Error()); err != nil {
		s.log.Warn("recording embedding state failed", "document_id", docID, "error", err)
	}
	return domain.EmbeddingFailed, "embedding unavailable: " + cause.Error()
}

// markRegistryIndexed flips the registry row for a file-backed document
// to indexed. Documents without a registry row (direct API ingests) are
// not an error.
func (s *IndexerService) markRegistryIndexed(ctx context.Context, sourcePath string) {
	if sourcePath == "" {
		return
	}
	err := s.registry.SetStatus(ctx, sourcePath, domain.RegistryIndexed, "", s.clock.Now().UTC())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("updating registry failed", "source_path", sourcePath, "error", err)
	}
}
