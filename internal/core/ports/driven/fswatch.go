package driven

import "context"

// FileEvent is a create or modify observed under the watched directory.
type FileEvent struct {
	// Path is the absolute path of the affected file.
	Path string
}

// DirectoryWatcher emits raw filesystem events for one directory.
// Debounce, hashing, and registry consultation happen in the watcher
// service, not here.
type DirectoryWatcher interface {
	// Start begins watching the directory. Events and errors are
	// delivered on the returned channels until ctx is cancelled or
	// Close is called, after which both channels close.
	Start(ctx context.Context, dir string) (<-chan FileEvent, <-chan error, error)

	// Close releases the observation handle.
	Close() error
}
