package cli

import (
	"context"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// mockEngine implements driving.Engine and driving.RetrievalRouter for
// command tests.
type mockEngine struct {
	indexResult  driving.IndexResult
	indexErr     error
	lastIndexReq driving.IndexRequest

	retrieveResult  domain.RetrievalResult
	retrieveErr     error
	lastRetrieveReq driving.RetrieveRequest

	routeResult domain.RetrievalResult
	routeErr    error
	lastRoute   driving.SubgraphInput

	enqueueEntry *domain.RegistryEntry
	enqueueErr   error

	rescanQueued int
	rescanErr    error
	lastRescan   string

	registryEntries []domain.RegistryEntry
	registryErr     error
	lastFilter      *domain.RegistryStatus

	resetCount int
	resetErr   error

	cleanupRemoved int
	cleanupErr     error
	lastRetention  *int

	documents     []domain.Document
	documentsErr  error
	lastWorkspace string

	removeErr error
	staleErr  error
	lastDocID string
}

func (m *mockEngine) IndexDocument(_ context.Context, req driving.IndexRequest) (driving.IndexResult, error) {
	m.lastIndexReq = req
	return m.indexResult, m.indexErr
}

func (m *mockEngine) Retrieve(_ context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error) {
	m.lastRetrieveReq = req
	return m.retrieveResult, m.retrieveErr
}

func (m *mockEngine) Route(_ context.Context, input driving.SubgraphInput) (domain.RetrievalResult, error) {
	m.lastRoute = input
	return m.routeResult, m.routeErr
}

func (m *mockEngine) EnqueueFile(_ context.Context, _ string) (*domain.RegistryEntry, error) {
	return m.enqueueEntry, m.enqueueErr
}

func (m *mockEngine) Rescan(_ context.Context, dir string) (int, error) {
	m.lastRescan = dir
	return m.rescanQueued, m.rescanErr
}

func (m *mockEngine) ListRegistry(_ context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error) {
	m.lastFilter = status
	if status != nil {
		filtered := make([]domain.RegistryEntry, 0, len(m.registryEntries))
		for _, e := range m.registryEntries {
			if e.Status == *status {
				filtered = append(filtered, e)
			}
		}
		return filtered, m.registryErr
	}
	return m.registryEntries, m.registryErr
}

func (m *mockEngine) ResetFailedRegistry(_ context.Context) (int, error) {
	return m.resetCount, m.resetErr
}

func (m *mockEngine) CleanupStale(_ context.Context, retentionDaysOverride *int) (int, error) {
	m.lastRetention = retentionDaysOverride
	return m.cleanupRemoved, m.cleanupErr
}

func (m *mockEngine) ListDocuments(_ context.Context, workspaceID string) ([]domain.Document, error) {
	m.lastWorkspace = workspaceID
	return m.documents, m.documentsErr
}

func (m *mockEngine) RemoveDocument(_ context.Context, documentID string) error {
	m.lastDocID = documentID
	return m.removeErr
}

func (m *mockEngine) MarkDocumentStale(_ context.Context, documentID string) error {
	m.lastDocID = documentID
	return m.staleErr
}

// Compile-time interface checks for the mock.
var (
	_ driving.Engine          = (*mockEngine)(nil)
	_ driving.RetrievalRouter = (*mockEngine)(nil)
)

// setupTestEngine swaps the package wiring for the given mock so
// commands execute without real storage. The returned cleanup restores
// the previous wiring.
func setupTestEngine(m *mockEngine) func() {
	prevEngine := engine
	prevRouter := router
	engine = m
	router = m
	return func() {
		engine = prevEngine
		router = prevRouter
	}
}
