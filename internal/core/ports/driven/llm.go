package driven

import (
	"context"

	"github.com/opencanvas/ragengine/internal/core/domain"
)

// QueryRewriter produces search variants for a user query. This is an
// optional capability: on failure or absence the original query is
// searched alone.
type QueryRewriter interface {
	// RewriteQuery returns 1-3 variants of the query. The variants do
	// not include the original.
	RewriteQuery(ctx context.Context, query string) ([]string, error)
}

// Reranker reorders fused candidates by relevance to the query. This is
// an optional capability: on failure the heuristic rerank stands.
//
// Implementations must return a permutation of the input; dropping or
// inventing candidates is a contract violation the retriever rejects.
type Reranker interface {
	// RerankCandidates returns the candidates in preferred order.
	RerankCandidates(ctx context.Context, query string, candidates []domain.Candidate) ([]domain.Candidate, error)
}
