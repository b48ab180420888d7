package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidScope indicates a retrieval scope missing its qualifier.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrPathInvalid indicates a filesystem path that is not usable.
	ErrPathInvalid = errors.New("path invalid")

	// Storage errors.

	// ErrStorage indicates a database failure.
	ErrStorage = errors.New("storage error")

	// ErrIntegrity indicates a broken data invariant (missing GLOBAL
	// workspace, vector length mismatch, orphaned chunk). Fatal; the
	// engine does not attempt repair.
	ErrIntegrity = errors.New("data integrity violation")

	// ErrScopeViolation indicates a retrieved chunk outside the
	// requested scope. Fatal invariant breach.
	ErrScopeViolation = errors.New("scope violation")

	// Provider errors.

	// ErrEmbeddingUnavailable indicates the embedding provider is not
	// configured. Indexing proceeds lexically; vector search is disabled.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrLLMUnavailable indicates the LLM capability is not configured.
	// Query rewriting and LLM reranking fall back to defaults.
	ErrLLMUnavailable = errors.New("LLM capability unavailable")

	// ErrProviderAuth indicates the provider rejected the credential.
	ErrProviderAuth = errors.New("provider authentication failed")

	// ErrModelNotFound indicates the provider does not know the model.
	ErrModelNotFound = errors.New("model not found")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// Resource errors.

	// ErrQueueFull indicates the indexing queue cannot accept more work.
	ErrQueueFull = errors.New("indexing queue full")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("timed out")
)
