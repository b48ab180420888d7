package domain

import "time"

// RegistryStatus is the lifecycle state of a watched filesystem path.
type RegistryStatus string

const (
	// RegistryPending means the path is queued for indexing.
	RegistryPending RegistryStatus = "pending"

	// RegistryIndexed means the content behind the path is in the corpus.
	RegistryIndexed RegistryStatus = "indexed"

	// RegistryFailed means indexing exhausted its retries.
	RegistryFailed RegistryStatus = "failed"

	// RegistrySkipped means the path was seen but intentionally not indexed.
	RegistrySkipped RegistryStatus = "skipped"
)

// IsValid returns true if the registry status is recognised.
func (s RegistryStatus) IsValid() bool {
	switch s {
	case RegistryPending, RegistryIndexed, RegistryFailed, RegistrySkipped:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s RegistryStatus) String() string {
	return string(s)
}

// MaxIndexRetries bounds how often a failing path is re-attempted.
const MaxIndexRetries = 3

// RegistryEntry tracks one (source_path, content_hash) pair seen by the
// watcher. A new hash for the same path replaces the old row.
type RegistryEntry struct {
	// SourcePath is the absolute filesystem path.
	SourcePath string

	// ContentHash is the lowercase hex SHA-256 of the file content.
	ContentHash string

	// Status is the current lifecycle state.
	Status RegistryStatus

	// RetryCount is the number of failed indexing attempts so far.
	RetryCount int

	// LastSeenAt is when the watcher last observed the path.
	LastSeenAt time.Time

	// LastIndexedAt is when indexing last succeeded, if ever.
	LastIndexedAt *time.Time

	// ErrorMessage holds the most recent failure, if any.
	ErrorMessage string

	// EmbeddingModel is the model in effect when the path was indexed.
	EmbeddingModel string
}

// CanRetry reports whether the entry is still within its retry budget.
func (e RegistryEntry) CanRetry() bool {
	return e.RetryCount < MaxIndexRetries
}
