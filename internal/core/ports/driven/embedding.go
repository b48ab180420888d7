package driven

import "context"

// EmbeddingProvider maps batches of text to fixed-dimension vectors.
// This is an optional capability: when absent or unconfigured, indexing
// persists the lexical index only and vector search is disabled.
//
// Implementations must return one vector per input text, in input
// order, all of Dimensions() length.
type EmbeddingProvider interface {
	// EmbedBatch generates embeddings for a batch of texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size the model produces.
	Dimensions() int

	// ModelName returns the model identifier vectors are stored under.
	ModelName() string

	// Ping verifies the provider is reachable and the credential is
	// accepted, using a minimal request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
