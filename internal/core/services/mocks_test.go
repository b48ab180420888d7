package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sync"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
	"github.com/opencanvas/ragengine/internal/markdown"
)

// --- Mock implementations shared by the service tests ---

// mockEmbedder implements driven.EmbeddingProvider with deterministic
// vectors. Specific texts can be pinned to fixed vectors; everything
// else hashes into a stable pseudo-vector.
type mockEmbedder struct {
	mu      sync.Mutex
	dims    int
	model   string
	err     error
	calls   int
	batches [][]string
	fixed   map[string][]float32
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: 4, model: domain.DefaultEmbeddingModel}
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := m.fixed[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = hashVector(text, m.dims)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }

func (m *mockEmbedder) ModelName() string { return m.model }

func (m *mockEmbedder) Ping(context.Context) error { return m.err }

func (m *mockEmbedder) Close() error { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// hashVector derives a stable unit-free vector from the text.
func hashVector(text string, dims int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/1000 + 0.001
	}
	return vec
}

// mockRewriter implements driven.QueryRewriter.
type mockRewriter struct {
	mu       sync.Mutex
	variants []string
	err      error
	calls    int
}

func (m *mockRewriter) RewriteQuery(_ context.Context, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.variants, nil
}

// mockReranker implements driven.Reranker. reorder receives the input
// and returns the preferred order; nil reorder echoes the input.
type mockReranker struct {
	mu      sync.Mutex
	err     error
	calls   int
	reorder func([]domain.Candidate) []domain.Candidate
}

func (m *mockReranker) RerankCandidates(_ context.Context, _ string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.reorder == nil {
		return candidates, nil
	}
	return m.reorder(candidates), nil
}

// mockConverter implements driven.MarkdownConverter. Paths present in
// out win; otherwise the file is read from disk.
type mockConverter struct {
	mu    sync.Mutex
	out   map[string]string
	err   error
	calls int
}

func (m *mockConverter) Convert(_ context.Context, path string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", "", m.err
	}
	content, ok := m.out[path]
	if !ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("reading %s: %w", path, err)
		}
		content = string(raw)
	}
	return content, markdown.ExtractTitle(content, path), nil
}

// mockDirWatcher implements driven.DirectoryWatcher over channels the
// test feeds directly.
type mockDirWatcher struct {
	mu       sync.Mutex
	events   chan driven.FileEvent
	errs     chan error
	startErr error
	started  bool
	closed   bool
	dir      string
}

func newMockDirWatcher() *mockDirWatcher {
	return &mockDirWatcher{
		events: make(chan driven.FileEvent, 16),
		errs:   make(chan error, 1),
	}
}

func (m *mockDirWatcher) Start(_ context.Context, dir string) (<-chan driven.FileEvent, <-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, nil, m.startErr
	}
	m.started = true
	m.dir = dir
	return m.events, m.errs, nil
}

func (m *mockDirWatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// mockRetrievalExecutor implements RetrievalExecutor with a scripted
// result, recording the request it received.
type mockRetrievalExecutor struct {
	mu     sync.Mutex
	result domain.RetrievalResult
	err    error
	last   *driving.RetrieveRequest
	calls  int
	// echoScope mirrors the requested scope into the result, the way
	// the real retriever does.
	echoScope bool
}

func (m *mockRetrievalExecutor) Retrieve(_ context.Context, req driving.RetrieveRequest) (domain.RetrievalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	reqCopy := req
	m.last = &reqCopy
	if m.err != nil {
		return domain.RetrievalResult{}, m.err
	}
	result := m.result
	if m.echoScope {
		result.UsedScope = req.Scope
	}
	return result, nil
}
