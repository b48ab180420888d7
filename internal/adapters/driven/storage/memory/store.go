// Package memory provides in-memory implementations of the driven
// storage ports for testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Ensure Store implements the storage interfaces.
var (
	_ driven.WorkspaceStore = (*Store)(nil)
	_ driven.DocumentStore  = (*Store)(nil)
	_ driven.EmbeddingStore = (*Store)(nil)
	_ driven.RegistryStore  = (*Store)(nil)
	_ driven.SearchStore    = (*Store)(nil)
)

// Store is an in-memory implementation of the corpus storage ports.
// Lexical search approximates BM25 with a term-frequency score; scope
// predicates mirror the SQL joins.
type Store struct {
	mu         sync.RWMutex
	workspaces map[string]domain.Workspace
	documents  map[string]domain.Document
	chunks     map[string][]domain.Chunk
	sessions   map[string]map[string]bool
	embeddings map[string]domain.Embedding
	registry   map[string]domain.RegistryEntry
}

// NewStore creates an in-memory store with the GLOBAL workspace seeded.
func NewStore() *Store {
	s := &Store{
		workspaces: make(map[string]domain.Workspace),
		documents:  make(map[string]domain.Document),
		chunks:     make(map[string][]domain.Chunk),
		sessions:   make(map[string]map[string]bool),
		embeddings: make(map[string]domain.Embedding),
		registry:   make(map[string]domain.RegistryEntry),
	}
	s.workspaces[domain.GlobalWorkspaceID] = domain.Workspace{
		ID:        domain.GlobalWorkspaceID,
		Name:      "Global",
		CreatedAt: time.Now().UTC(),
	}
	return s
}

// ==================== WorkspaceStore ====================

// EnsureWorkspace creates the workspace if it does not exist.
func (s *Store) EnsureWorkspace(_ context.Context, ws domain.Workspace) error {
	if ws.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[ws.ID]; ok {
		return nil
	}
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	s.workspaces[ws.ID] = ws
	return nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(_ context.Context, id string) (*domain.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ws, nil
}

// ==================== DocumentStore ====================

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.documents {
		if existing.ID != doc.ID &&
			existing.WorkspaceID == doc.WorkspaceID &&
			existing.ContentHash == doc.ContentHash {
			return domain.ErrAlreadyExists
		}
	}
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetDocumentByHash retrieves a document by its corpus identity.
func (s *Store) GetDocumentByHash(_ context.Context, workspaceID, contentHash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.WorkspaceID == workspaceID && doc.ContentHash == contentHash {
			d := doc
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

// TouchDocument advances indexed_at and clears stale_at.
func (s *Store) TouchDocument(_ context.Context, id string, indexedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.IndexedAt = indexedAt
	doc.StaleAt = nil
	s.documents[id] = doc
	return nil
}

// SetEmbeddingState records the outcome of the embedding phase.
func (s *Store) SetEmbeddingState(_ context.Context, id string, state domain.EmbeddingState, model, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.EmbeddingState = state
	doc.EmbeddingModel = model
	doc.EmbeddingError = errMsg
	s.documents[id] = doc
	return nil
}

// MarkStale sets stale_at.
func (s *Store) MarkStale(_ context.Context, id string, staleAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.StaleAt = &staleAt
	s.documents[id] = doc
	return nil
}

// ReplaceChunks swaps the document's chunks.
func (s *Store) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)
	s.chunks[documentID] = copied
	return nil
}

// GetChunks returns the document's chunks ordered by chunk_index.
func (s *Store) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, len(s.chunks[documentID]))
	copy(chunks, s.chunks[documentID])
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// DeleteDocument removes the document and everything hanging off it.
func (s *Store) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, chunk := range s.chunks[id] {
		delete(s.embeddings, chunk.ID)
	}
	delete(s.chunks, id)
	delete(s.sessions, id)
	delete(s.documents, id)
	if doc.SourcePath != "" {
		delete(s.registry, doc.SourcePath)
	}
	return nil
}

// ListDocuments returns documents in a workspace, most recently indexed
// first.
func (s *Store) ListDocuments(_ context.Context, workspaceID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.WorkspaceID == workspaceID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].IndexedAt.After(docs[j].IndexedAt) })
	return docs, nil
}

// LinkSession attaches a document to a session.
func (s *Store) LinkSession(_ context.Context, documentID, sessionID string, _ time.Time) error {
	if documentID == "" || sessionID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[documentID] == nil {
		s.sessions[documentID] = make(map[string]bool)
	}
	s.sessions[documentID][sessionID] = true
	return nil
}

// ListStaleDocuments returns session-linked documents whose stale_at is
// before the cutoff.
func (s *Store) ListStaleDocuments(_ context.Context, cutoff time.Time) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []domain.Document
	for _, doc := range s.documents {
		if doc.StaleAt == nil || !doc.StaleAt.Before(cutoff) {
			continue
		}
		if len(s.sessions[doc.ID]) == 0 {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// ==================== EmbeddingStore ====================

// UpsertEmbeddings writes vectors keyed by chunk_id.
func (s *Store) UpsertEmbeddings(_ context.Context, embeddings []domain.Embedding) error {
	for _, emb := range embeddings {
		if err := emb.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, emb := range embeddings {
		if emb.CreatedAt.IsZero() {
			emb.CreatedAt = time.Now().UTC()
		}
		s.embeddings[emb.ChunkID] = emb
	}
	return nil
}

// CountEmbeddings reports how many of the document's chunks carry a
// vector under the given model.
func (s *Store) CountEmbeddings(_ context.Context, documentID, model string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, chunk := range s.chunks[documentID] {
		if emb, ok := s.embeddings[chunk.ID]; ok && emb.Model == model {
			count++
		}
	}
	return count, nil
}

// DeleteEmbeddings removes all vectors for a document.
func (s *Store) DeleteEmbeddings(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range s.chunks[documentID] {
		delete(s.embeddings, chunk.ID)
	}
	return nil
}

// ==================== RegistryStore ====================

// UpsertEntry inserts or replaces the entry for its path.
func (s *Store) UpsertEntry(_ context.Context, entry domain.RegistryEntry) error {
	if entry.SourcePath == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[entry.SourcePath] = entry
	return nil
}

// GetEntry retrieves the entry for a path.
func (s *Store) GetEntry(_ context.Context, sourcePath string) (*domain.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.registry[sourcePath]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// MarkSeen refreshes last_seen_at.
func (s *Store) MarkSeen(_ context.Context, sourcePath string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry[sourcePath]
	if !ok {
		return domain.ErrNotFound
	}
	entry.LastSeenAt = at
	s.registry[sourcePath] = entry
	return nil
}

// SetStatus transitions the entry's status.
func (s *Store) SetStatus(_ context.Context, sourcePath string, status domain.RegistryStatus, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry[sourcePath]
	if !ok {
		return domain.ErrNotFound
	}
	entry.Status = status
	entry.ErrorMessage = errMsg
	if status == domain.RegistryIndexed {
		indexedAt := at
		entry.LastIndexedAt = &indexedAt
		entry.RetryCount = 0
	}
	s.registry[sourcePath] = entry
	return nil
}

// IncrementRetry bumps retry_count and returns the new value.
func (s *Store) IncrementRetry(_ context.Context, sourcePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.registry[sourcePath]
	if !ok {
		return 0, domain.ErrNotFound
	}
	entry.RetryCount++
	s.registry[sourcePath] = entry
	return entry.RetryCount, nil
}

// ListEntries returns entries, optionally filtered by status.
func (s *Store) ListEntries(_ context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []domain.RegistryEntry
	for _, entry := range s.registry {
		if status != nil && entry.Status != *status {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SourcePath < entries[j].SourcePath })
	return entries, nil
}

// ResetFailed moves failed entries back to pending.
func (s *Store) ResetFailed(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for path, entry := range s.registry {
		if entry.Status != domain.RegistryFailed {
			continue
		}
		entry.Status = domain.RegistryPending
		entry.RetryCount = 0
		entry.ErrorMessage = ""
		s.registry[path] = entry
		count++
	}
	return count, nil
}

// ==================== SearchStore ====================

// SearchLexical matches query tokens against chunk content with a
// term-frequency score standing in for BM25 (lower is better).
func (s *Store) SearchLexical(_ context.Context, query string, scope domain.Scope, limit int) ([]driven.LexicalHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []driven.LexicalHit
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || !s.inScope(doc, scope) {
			continue
		}
		for _, chunk := range chunks {
			haystack := strings.ToLower(chunk.Content + " " + chunk.SectionTitle + " " + doc.SourceName)
			matches := 0
			for _, token := range tokens {
				matches += strings.Count(haystack, token)
			}
			if matches == 0 {
				continue
			}
			hits = append(hits, driven.LexicalHit{ChunkID: chunk.ID, Score: -float64(matches)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// LoadEmbeddings returns every stored vector permitted by the scope
// under the given model.
func (s *Store) LoadEmbeddings(_ context.Context, scope domain.Scope, model string) ([]driven.VectorRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if model == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []driven.VectorRecord
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || !s.inScope(doc, scope) {
			continue
		}
		for _, chunk := range chunks {
			emb, ok := s.embeddings[chunk.ID]
			if !ok || emb.Model != model {
				continue
			}
			records = append(records, driven.VectorRecord{ChunkID: chunk.ID, Vector: emb.Vector})
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ChunkID < records[j].ChunkID })
	return records, nil
}

// GetChunkDetails hydrates the given chunks.
func (s *Store) GetChunkDetails(_ context.Context, chunkIDs []string) ([]driven.ChunkDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		wanted[id] = true
	}

	var details []driven.ChunkDetails
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok {
			continue
		}
		for _, chunk := range chunks {
			if !wanted[chunk.ID] {
				continue
			}
			details = append(details, driven.ChunkDetails{
				ChunkID:      chunk.ID,
				DocumentID:   chunk.DocumentID,
				ChunkIndex:   chunk.ChunkIndex,
				SectionTitle: chunk.SectionTitle,
				SourceName:   doc.SourceName,
				Content:      chunk.Content,
				UpdatedAt:    doc.IndexedAt,
			})
		}
	}
	return details, nil
}

// inScope mirrors the SQL scope predicate.
func (s *Store) inScope(doc domain.Document, scope domain.Scope) bool {
	switch scope.Kind {
	case domain.ScopeGlobal:
		return doc.WorkspaceID == domain.GlobalWorkspaceID
	case domain.ScopeWorkspace:
		return doc.WorkspaceID == scope.WorkspaceID
	case domain.ScopeSession:
		return s.sessions[doc.ID][scope.SessionID]
	default:
		return false
	}
}
