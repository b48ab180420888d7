// Package fswatch implements the directory watcher port on fsnotify.
//
// The adapter forwards raw create and write events for regular files;
// debouncing, hashing, and registry consultation belong to the watcher
// service consuming the channel.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// Ensure Watcher implements the interface.
var _ driven.DirectoryWatcher = (*Watcher)(nil)

// Watcher emits filesystem events for a single directory.
type Watcher struct {
	mu  sync.Mutex
	fsw *fsnotify.Watcher
}

// NewWatcher creates an idle watcher. Observation begins with Start.
func NewWatcher() *Watcher {
	return &Watcher{}
}

// Start begins watching dir. The returned channels close when ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context, dir string) (<-chan driven.FileEvent, <-chan error, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", domain.ErrPathInvalid, dir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", domain.ErrPathInvalid, dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil, nil, fmt.Errorf("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w.fsw = fsw

	events := make(chan driven.FileEvent)
	errs := make(chan error, 1)
	go forward(ctx, fsw, events, errs)
	return events, errs, nil
}

// forward relays relevant fsnotify events until the source closes or
// the context ends.
func forward(ctx context.Context, fsw *fsnotify.Watcher, events chan<- driven.FileEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			// Created subdirectories and already-gone temp files are
			// not indexable.
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			select {
			case events <- driven.FileEvent{Path: event.Name}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			select {
			case errs <- err:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases the observation handle, closing the event channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}
