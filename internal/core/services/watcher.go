package services

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencanvas/ragengine/internal/cache"
	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
	"github.com/opencanvas/ragengine/internal/markdown"
)

// DocumentIndexer is the single capability the watcher drives. It is
// satisfied by IndexerService.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, req driving.IndexRequest) (driving.IndexResult, error)
}

const (
	// maxIndexWorkers bounds how many indexing jobs run in parallel.
	maxIndexWorkers = 5

	// indexJobTimeout aborts one stuck indexing job.
	indexJobTimeout = 5 * time.Minute

	// indexRetryBase is the first retry delay; it doubles per attempt.
	indexRetryBase = time.Second
)

// watchedExtensions are the file types the directory scan considers.
// Explicitly enqueued files bypass this filter.
var watchedExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".txt":      {},
	".pdf":      {},
}

// indexJob is one queued unit of indexing work.
type indexJob struct {
	path        string
	contentHash string
	fileSize    int64
}

// jobHeap orders queued jobs smallest file first, so cheap documents
// never starve behind a bulk import of large ones.
type jobHeap []indexJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].fileSize != h[j].fileSize {
		return h[i].fileSize < h[j].fileSize
	}
	return h[i].path < h[j].path
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(indexJob)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	*h = old[:n-1]
	return job
}

// WatcherService owns the directory observation handle and the bounded
// indexing queue. File events are debounced, hashed, checked against
// the registry, and dispatched shortest-job-first to a worker pool.
type WatcherService struct {
	indexer   DocumentIndexer
	registry  driven.RegistryStore
	converter driven.MarkdownConverter
	dirWatch  driven.DirectoryWatcher
	caches    *cache.Caches
	clock     driven.Clock
	log       driven.Logger
	settings  domain.WatcherSettings

	in  chan indexJob // producers enqueue here; bounded
	out chan indexJob // dispatcher hands the smallest job to a worker

	workers int
	timeout time.Duration
	backoff time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewWatcherService creates a watcher. The directory watcher and
// converter are required; caches may be nil.
func NewWatcherService(
	indexer DocumentIndexer,
	registry driven.RegistryStore,
	converter driven.MarkdownConverter,
	dirWatch driven.DirectoryWatcher,
	caches *cache.Caches,
	clock driven.Clock,
	log driven.Logger,
	settings domain.WatcherSettings,
) *WatcherService {
	settings = settings.Normalized()
	return &WatcherService{
		indexer:   indexer,
		registry:  registry,
		converter: converter,
		dirWatch:  dirWatch,
		caches:    caches,
		clock:     clock,
		log:       log,
		settings:  settings,
		in:        make(chan indexJob, settings.QueueCapacity),
		out:       make(chan indexJob),
		workers:   maxIndexWorkers,
		timeout:   indexJobTimeout,
		backoff:   indexRetryBase,
		timers:    make(map[string]*time.Timer),
	}
}

// Start launches the dispatcher, the worker pool, and, when a directory
// is configured, the filesystem observation. It does not block.
func (w *WatcherService) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil // Already running
	}

	runCtx, cancel := context.WithCancel(ctx)

	if w.settings.Directory != "" && w.dirWatch != nil {
		events, errs, err := w.dirWatch.Start(runCtx, w.settings.Directory)
		if err != nil {
			cancel()
			return fmt.Errorf("starting directory watch: %w", err)
		}
		w.wg.Add(1)
		go w.watchLoop(runCtx, events, errs)
		w.log.Info("watching directory", "dir", w.settings.Directory)
	}

	w.wg.Add(1)
	go w.dispatch(runCtx)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(runCtx)
	}

	w.running = true
	w.cancel = cancel
	return nil
}

// Stop cancels all background work and waits for it to finish. Queued
// jobs that have not started are dropped; their registry entries stay
// pending and the next rescan re-enqueues them.
func (w *WatcherService) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.timersMu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.timersMu.Unlock()

	if w.dirWatch != nil {
		if err := w.dirWatch.Close(); err != nil {
			w.log.Warn("closing directory watcher", "error", err)
		}
	}

	w.wg.Wait()
	return nil
}

// EnqueueFile hashes the file, records it as pending, and queues it
// without blocking. A full queue fails fast with ErrQueueFull so
// interactive callers are never stalled behind a bulk import.
func (w *WatcherService) EnqueueFile(ctx context.Context, path string) (*domain.RegistryEntry, error) {
	if _, err := w.processPath(ctx, path, false); err != nil {
		return nil, err
	}
	entry, err := w.registry.GetEntry(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading registry entry: %w", err)
	}
	return entry, nil
}

// Rescan walks the directory once, applying the same hash and dedup
// path as live events. Enqueueing blocks when the queue is full, which
// throttles bulk imports instead of dropping work.
func (w *WatcherService) Rescan(ctx context.Context, dir string) (int, error) {
	if dir == "" {
		dir = w.settings.Directory
	}
	if dir == "" {
		return 0, fmt.Errorf("no watch directory configured: %w", domain.ErrInvalidInput)
	}

	queued := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !watchableFile(path) {
			return nil
		}
		enqueued, perr := w.processPath(ctx, path, true)
		if perr != nil {
			if ctx.Err() != nil {
				return perr
			}
			w.log.Warn("rescan skipping file", "path", path, "error", perr)
			return nil
		}
		if enqueued {
			queued++
		}
		return nil
	})
	if err != nil {
		return queued, fmt.Errorf("walking %s: %w", dir, err)
	}

	w.log.Info("rescan complete", "dir", dir, "queued", queued)
	return queued, nil
}

// watchLoop consumes raw filesystem events and debounces them per path.
func (w *WatcherService) watchLoop(ctx context.Context, events <-chan driven.FileEvent, errs <-chan error) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !watchableFile(event.Path) {
				continue
			}
			w.debounce(ctx, event.Path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("directory watcher error", "error", err)
		}
	}
}

// debounce (re)arms the per-path quiescence timer. The path is
// processed only after no further events arrive within the window, so
// a file being written in bursts is hashed once.
func (w *WatcherService) debounce(ctx context.Context, path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settings.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.settings.Debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, path)
		w.timersMu.Unlock()

		if _, err := w.processPath(ctx, path, true); err != nil && ctx.Err() == nil {
			w.log.Warn("processing file event", "path", path, "error", err)
		}
	})
}

// processPath hashes the file and consults the registry. Content
// already indexed (or pending, or out of retries) is only touched with
// a fresh last_seen_at; everything else is recorded pending and
// enqueued. Returns whether a job was queued.
func (w *WatcherService) processPath(ctx context.Context, path string, blockOnFull bool) (bool, error) {
	hash, err := markdown.HashFile(path)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", filepath.Base(path), err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}

	entry, err := w.registry.GetEntry(ctx, path)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("reading registry entry: %w", err)
	}

	now := w.clock.Now()
	retryCount := 0
	if entry != nil && entry.ContentHash == hash {
		terminal := entry.Status == domain.RegistryIndexed ||
			(entry.Status == domain.RegistryFailed && !entry.CanRetry())
		if terminal {
			return false, w.registry.MarkSeen(ctx, path, now)
		}
		// Same content, not terminal: re-enqueue, keeping the retry
		// count so the budget is per (path, hash), not per event. A
		// duplicate job for content already in flight is harmless; the
		// indexer's hash dedup turns it into a timestamp refresh.
		retryCount = entry.RetryCount
	}

	if err := w.registry.UpsertEntry(ctx, domain.RegistryEntry{
		SourcePath:  path,
		ContentHash: hash,
		Status:      domain.RegistryPending,
		RetryCount:  retryCount,
		LastSeenAt:  now,
	}); err != nil {
		return false, fmt.Errorf("recording pending entry: %w", err)
	}

	job := indexJob{path: path, contentHash: hash, fileSize: info.Size()}
	if blockOnFull {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case w.in <- job:
			return true, nil
		}
	}
	select {
	case w.in <- job:
		return true, nil
	default:
		return false, fmt.Errorf("enqueueing %s: %w", filepath.Base(path), domain.ErrQueueFull)
	}
}

// dispatch moves jobs from the intake channel to the workers in
// shortest-job-first order. The heap is capped at the queue capacity;
// when it is full, intake pauses and producers feel backpressure.
func (w *WatcherService) dispatch(ctx context.Context) {
	defer w.wg.Done()

	pending := &jobHeap{}
	capacity := w.settings.QueueCapacity

	for {
		// Absorb any burst already queued so the heap orders all of it
		// before the next job is handed out.
	drain:
		for pending.Len() < capacity {
			select {
			case job := <-w.in:
				heap.Push(pending, job)
			default:
				break drain
			}
		}

		var outCh chan indexJob
		var next indexJob
		if pending.Len() > 0 {
			outCh = w.out
			next = (*pending)[0]
		}
		var inCh chan indexJob
		if pending.Len() < capacity {
			inCh = w.in
		}

		select {
		case <-ctx.Done():
			return
		case job := <-inCh:
			heap.Push(pending, job)
		case outCh <- next:
			heap.Pop(pending)
		}
	}
}

// worker executes dispatched jobs until shutdown.
func (w *WatcherService) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.out:
			w.process(ctx, job)
		}
	}
}

// process runs one job with retries. Failures increment the registry
// retry count and back off exponentially; exhausting the budget marks
// the entry failed with the last error.
func (w *WatcherService) process(ctx context.Context, job indexJob) {
	backoff := w.backoff
	for {
		err := w.indexOnce(ctx, job)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			// Shutdown, not a job failure. The entry stays pending.
			return
		}

		retries, regErr := w.registry.IncrementRetry(ctx, job.path)
		if regErr != nil {
			w.log.Error("recording index failure", "path", job.path, "error", regErr)
			return
		}
		if retries >= domain.MaxIndexRetries {
			if regErr := w.registry.SetStatus(ctx, job.path, domain.RegistryFailed, err.Error(), w.clock.Now()); regErr != nil {
				w.log.Error("marking entry failed", "path", job.path, "error", regErr)
			}
			w.log.Warn("indexing failed permanently", "path", job.path, "retries", retries, "error", err)
			return
		}

		w.log.Warn("indexing failed; backing off", "path", job.path, "attempt", retries, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// indexOnce converts and indexes the file under the per-job deadline.
func (w *WatcherService) indexOnce(ctx context.Context, job indexJob) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	markdownText, sourceName, err := w.convert(jobCtx, job)
	if err != nil {
		return err
	}

	_, err = w.indexer.IndexDocument(jobCtx, driving.IndexRequest{
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  sourceName,
		SourcePath:  job.path,
		Markdown:    markdownText,
		FileSize:    job.fileSize,
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", filepath.Base(job.path), err)
	}
	return nil
}

// convert produces the Markdown rendition, served from the conversion
// cache when the same content was converted before.
func (w *WatcherService) convert(ctx context.Context, job indexJob) (string, string, error) {
	if w.caches != nil {
		if md, ok := w.caches.Markdown.Get(job.contentHash); ok {
			return md, markdown.ExtractTitle(md, job.path), nil
		}
	}

	md, sourceName, err := w.converter.Convert(ctx, job.path)
	if err != nil {
		return "", "", fmt.Errorf("converting %s: %w", filepath.Base(job.path), err)
	}
	if w.caches != nil {
		w.caches.Markdown.Add(job.contentHash, md)
	}
	if sourceName == "" {
		sourceName = markdown.ExtractTitle(md, job.path)
	}
	return md, sourceName, nil
}

// watchableFile filters directory scans to the supported extensions.
func watchableFile(path string) bool {
	_, ok := watchedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
