package mcp

import (
	"context"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// mockEngine is a mock implementation of driving.Engine.
type mockEngine struct {
	indexResult  driving.IndexResult
	indexErr     error
	lastIndexReq driving.IndexRequest

	retrieveResult  domain.RetrievalResult
	retrieveErr     error
	lastRetrieveReq driving.RetrieveRequest

	registryEntries []domain.RegistryEntry
	registryErr     error
	lastFilter      *domain.RegistryStatus

	documents     []domain.Document
	documentsErr  error
	lastWorkspace string
}

func (m *mockEngine) IndexDocument(_ context.Context, req driving.IndexRequest) (driving.IndexResult, error) {
	m.lastIndexReq = req
	return m.indexResult, m.indexErr
}

func (m *mockEngine) Retrieve(_ context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error) {
	m.lastRetrieveReq = req
	return m.retrieveResult, m.retrieveErr
}

func (m *mockEngine) EnqueueFile(_ context.Context, _ string) (*domain.RegistryEntry, error) {
	return nil, nil
}

func (m *mockEngine) Rescan(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockEngine) ListRegistry(_ context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error) {
	m.lastFilter = status
	return m.registryEntries, m.registryErr
}

func (m *mockEngine) ResetFailedRegistry(_ context.Context) (int, error) {
	return 0, nil
}

func (m *mockEngine) CleanupStale(_ context.Context, _ *int) (int, error) {
	return 0, nil
}

func (m *mockEngine) ListDocuments(_ context.Context, workspaceID string) ([]domain.Document, error) {
	m.lastWorkspace = workspaceID
	return m.documents, m.documentsErr
}

func (m *mockEngine) RemoveDocument(_ context.Context, _ string) error {
	return nil
}

func (m *mockEngine) MarkDocumentStale(_ context.Context, _ string) error {
	return nil
}

// mockDocumentStore is a mock implementation of driven.DocumentStore.
// Only GetChunks carries behaviour; the rest satisfy the interface.
type mockDocumentStore struct {
	chunks    []domain.Chunk
	chunksErr error
}

func (m *mockDocumentStore) SaveDocument(_ context.Context, _ *domain.Document) error {
	return nil
}

func (m *mockDocumentStore) GetDocument(_ context.Context, _ string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (m *mockDocumentStore) GetDocumentByHash(_ context.Context, _, _ string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (m *mockDocumentStore) TouchDocument(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockDocumentStore) SetEmbeddingState(_ context.Context, _ string, _ domain.EmbeddingState, _, _ string) error {
	return nil
}

func (m *mockDocumentStore) MarkStale(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (m *mockDocumentStore) ReplaceChunks(_ context.Context, _ string, _ []domain.Chunk, _ string) error {
	return nil
}

func (m *mockDocumentStore) GetChunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.chunksErr
}

func (m *mockDocumentStore) DeleteDocument(_ context.Context, _ string) error {
	return nil
}

func (m *mockDocumentStore) ListDocuments(_ context.Context, _ string) ([]domain.Document, error) {
	return nil, nil
}

func (m *mockDocumentStore) LinkSession(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (m *mockDocumentStore) ListStaleDocuments(_ context.Context, _ time.Time) ([]domain.Document, error) {
	return nil, nil
}

// Compile-time interface checks for the mocks.
var (
	_ driving.Engine       = (*mockEngine)(nil)
	_ driven.DocumentStore = (*mockDocumentStore)(nil)
)
