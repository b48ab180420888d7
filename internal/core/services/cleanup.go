package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// CleanupService removes session documents whose stale_at tombstone has
// aged past the retention window. Documents without a session link are
// never candidates, so the shared corpus is never touched.
type CleanupService struct {
	documents driven.DocumentStore
	clock     driven.Clock
	log       driven.Logger
	settings  domain.CleanupSettings

	// sessionDir is the directory of per-session uploads. Source files
	// are unlinked only when they live under it; empty disables file
	// removal entirely.
	sessionDir string

	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewCleanupService creates a cleanup service.
func NewCleanupService(
	documents driven.DocumentStore,
	clock driven.Clock,
	log driven.Logger,
	settings domain.CleanupSettings,
	sessionDir string,
) *CleanupService {
	settings = settings.Normalized()
	return &CleanupService{
		documents:  documents,
		clock:      clock,
		log:        log,
		settings:   settings,
		sessionDir: sessionDir,
		interval:   time.Duration(settings.IntervalHours) * time.Hour,
	}
}

// Start sweeps immediately and then on every interval tick. This method
// blocks until Stop is called or the context ends.
func (s *CleanupService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	return s.run(ctx)
}

// Stop ends the sweep loop.
func (s *CleanupService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	return nil
}

// run is the main sweep loop.
func (s *CleanupService) run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	if _, err := s.CleanupStale(ctx, nil); err != nil {
		s.log.Warn("scheduled cleanup failed", "error", err)
	}
}

// CleanupStale removes every session document whose stale_at is older
// than the retention window and returns how many were removed. A nil
// override uses the configured retention days; zero removes everything
// already marked stale.
func (s *CleanupService) CleanupStale(ctx context.Context, retentionDaysOverride *int) (int, error) {
	retention := s.settings.RetentionDays
	if retentionDaysOverride != nil {
		if *retentionDaysOverride < 0 {
			return 0, fmt.Errorf("retention days must not be negative: %w", domain.ErrInvalidInput)
		}
		retention = *retentionDaysOverride
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retention)
	docs, err := s.documents.ListStaleDocuments(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale documents: %w", err)
	}

	removed := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		s.unlinkSourceFile(doc)

		if err := s.documents.DeleteDocument(ctx, doc.ID); err != nil {
			s.log.Warn("deleting stale document", "document_id", doc.ID, "error", err)
			continue
		}
		removed++
	}

	s.log.Info("cleanup complete", "removed", removed, "retention_days", retention)
	return removed, nil
}

// unlinkSourceFile deletes the document's source file when it lives in
// the session upload directory. Files anywhere else belong to the user
// and stay.
func (s *CleanupService) unlinkSourceFile(doc domain.Document) {
	if doc.SourcePath == "" || !s.insideSessionDir(doc.SourcePath) {
		return
	}
	if err := os.Remove(doc.SourcePath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing session upload", "path", doc.SourcePath, "error", err)
	}
}

func (s *CleanupService) insideSessionDir(path string) bool {
	if s.sessionDir == "" {
		return false
	}
	rel, err := filepath.Rel(s.sessionDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
