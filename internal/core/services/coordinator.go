package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
)

// Ensure Coordinator implements the driving ports.
var (
	_ driving.Engine          = (*Coordinator)(nil)
	_ driving.RetrievalRouter = (*Coordinator)(nil)
)

// FileWatcher is the watcher surface the coordinator drives.
type FileWatcher interface {
	Start(ctx context.Context) error
	Stop() error
	EnqueueFile(ctx context.Context, path string) (*domain.RegistryEntry, error)
	Rescan(ctx context.Context, dir string) (int, error)
}

// StaleCleaner is the cleanup surface the coordinator drives.
type StaleCleaner interface {
	Start(ctx context.Context) error
	Stop() error
	CleanupStale(ctx context.Context, retentionDaysOverride *int) (int, error)
}

// Coordinator composes the engine services behind the driving ports and
// owns the lifecycle of the background ones. Hosts construct it once,
// Start it, and call the Engine operations; requests that arrive with a
// zero settings snapshot get the configured snapshot filled in here so
// every service below sees an explicit, normalised value.
type Coordinator struct {
	indexer   DocumentIndexer
	retriever RetrievalExecutor
	router    driving.RetrievalRouter
	watcher   FileWatcher
	cleaner   StaleCleaner
	documents driven.DocumentStore
	registry  driven.RegistryStore
	settings  *SettingsService
	clock     driven.Clock
	log       driven.Logger

	mu          sync.Mutex
	started     bool
	cleanerDone chan struct{}
}

// NewCoordinator creates the engine facade. The watcher and cleaner are
// optional; their operations fail with ErrInvalidInput when absent.
func NewCoordinator(
	indexer DocumentIndexer,
	retriever RetrievalExecutor,
	router driving.RetrievalRouter,
	watcher FileWatcher,
	cleaner StaleCleaner,
	documents driven.DocumentStore,
	registry driven.RegistryStore,
	settings *SettingsService,
	clock driven.Clock,
	log driven.Logger,
) *Coordinator {
	return &Coordinator{
		indexer:   indexer,
		retriever: retriever,
		router:    router,
		watcher:   watcher,
		cleaner:   cleaner,
		documents: documents,
		registry:  registry,
		settings:  settings,
		clock:     clock,
		log:       log,
	}
}

// Start launches the background services: the filesystem watcher and
// the periodic cleanup sweep. It does not block. The given context
// bounds all background work; cancelling it is equivalent to Close.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil // Already running
	}

	if c.watcher != nil {
		if err := c.watcher.Start(ctx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	if c.cleaner != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := c.cleaner.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warn("cleanup loop ended", "error", err)
			}
		}()
		c.cleanerDone = done
	}

	c.started = true
	return nil
}

// Close stops the background services and waits for them to finish.
// In-flight index jobs run to completion inside their own timeouts.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	var errs []error
	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping watcher: %w", err))
		}
	}
	if c.cleaner != nil {
		if err := c.cleaner.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping cleanup: %w", err))
		}
		<-c.cleanerDone
	}
	return errors.Join(errs...)
}

// IndexDocument ingests one Markdown document.
func (c *Coordinator) IndexDocument(ctx context.Context, req driving.IndexRequest) (driving.IndexResult, error) {
	return c.indexer.IndexDocument(ctx, req)
}

// Retrieve runs scope-enforced hybrid retrieval.
func (c *Coordinator) Retrieve(ctx context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error) {
	if req.Settings == (domain.RetrievalSettings{}) {
		req.Settings = c.settings.Retrieval()
	}
	return c.retriever.Retrieve(ctx, req)
}

// Route runs the decision subgraph for one chat message.
func (c *Coordinator) Route(ctx context.Context, input driving.SubgraphInput) (domain.RetrievalResult, error) {
	if input.Settings == (domain.RetrievalSettings{}) {
		input.Settings = c.settings.Retrieval()
	}
	return c.router.Route(ctx, input)
}

// EnqueueFile hashes the file and queues it for indexing.
func (c *Coordinator) EnqueueFile(ctx context.Context, path string) (*domain.RegistryEntry, error) {
	if c.watcher == nil {
		return nil, fmt.Errorf("watcher not configured: %w", domain.ErrInvalidInput)
	}
	return c.watcher.EnqueueFile(ctx, path)
}

// Rescan walks the directory once and enqueues unknown content.
func (c *Coordinator) Rescan(ctx context.Context, dir string) (int, error) {
	if c.watcher == nil {
		return 0, fmt.Errorf("watcher not configured: %w", domain.ErrInvalidInput)
	}
	return c.watcher.Rescan(ctx, dir)
}

// ListRegistry returns watcher bookkeeping, optionally filtered.
func (c *Coordinator) ListRegistry(ctx context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error) {
	return c.registry.ListEntries(ctx, status)
}

// ResetFailedRegistry moves failed registry entries back to pending.
func (c *Coordinator) ResetFailedRegistry(ctx context.Context) (int, error) {
	return c.registry.ResetFailed(ctx)
}

// CleanupStale removes session documents past the retention window.
func (c *Coordinator) CleanupStale(ctx context.Context, retentionDaysOverride *int) (int, error) {
	if c.cleaner == nil {
		return 0, fmt.Errorf("cleanup not configured: %w", domain.ErrInvalidInput)
	}
	return c.cleaner.CleanupStale(ctx, retentionDaysOverride)
}

// ListDocuments returns the documents in a workspace. An empty
// workspace ID means the global corpus.
func (c *Coordinator) ListDocuments(ctx context.Context, workspaceID string) ([]domain.Document, error) {
	if workspaceID == "" {
		workspaceID = domain.GlobalWorkspaceID
	}
	return c.documents.ListDocuments(ctx, workspaceID)
}

// RemoveDocument deletes a document and all derived rows.
func (c *Coordinator) RemoveDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document id required: %w", domain.ErrInvalidInput)
	}
	return c.documents.DeleteDocument(ctx, documentID)
}

// MarkDocumentStale tombstones a session document for cleanup.
func (c *Coordinator) MarkDocumentStale(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document id required: %w", domain.ErrInvalidInput)
	}
	return c.documents.MarkStale(ctx, documentID, c.clock.Now())
}
