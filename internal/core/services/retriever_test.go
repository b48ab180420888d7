package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencanvas/ragengine/internal/adapters/driven/clock"
	"github.com/opencanvas/ragengine/internal/adapters/driven/storage/memory"
	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
	"github.com/opencanvas/ragengine/internal/core/ports/driving"
	"github.com/opencanvas/ragengine/internal/logger"
)

var retrieverEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRetriever(store *memory.Store, embedder driven.EmbeddingProvider, reranker driven.Reranker) *RetrieverService {
	return NewRetrieverService(store, embedder, reranker, clock.NewFake(retrieverEpoch), logger.Nop())
}

func retrievalDoc(id, sourceName string) domain.Document {
	return domain.Document{
		ID:             id,
		WorkspaceID:    domain.GlobalWorkspaceID,
		SourceType:     domain.SourcePDF,
		SourceName:     sourceName,
		ContentHash:    "hash-" + id,
		IndexedAt:      retrieverEpoch,
		EmbeddingState: domain.EmbeddingDisabled,
	}
}

func mkChunk(id string, index int, title, content string) domain.Chunk {
	return domain.Chunk{
		ID:           id,
		ChunkIndex:   index,
		SectionTitle: title,
		Content:      content,
		TokenCount:   len(content) / 4,
	}
}

func seedRetrievalDoc(t *testing.T, store *memory.Store, doc domain.Document, sessionID string, chunks ...domain.Chunk) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureWorkspace(ctx, domain.Workspace{
		ID: doc.WorkspaceID, Name: doc.WorkspaceID, CreatedAt: retrieverEpoch,
	}))
	require.NoError(t, store.SaveDocument(ctx, &doc))
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}
	require.NoError(t, store.ReplaceChunks(ctx, doc.ID, chunks, doc.SourceName))
	if sessionID != "" {
		require.NoError(t, store.LinkSession(ctx, doc.ID, sessionID, retrieverEpoch))
	}
}

func seedVectors(t *testing.T, store *memory.Store, model string, vectors map[string][]float32) {
	t.Helper()
	rows := make([]domain.Embedding, 0, len(vectors))
	for chunkID, vec := range vectors {
		rows = append(rows, domain.Embedding{
			ChunkID:   chunkID,
			Model:     model,
			Dims:      len(vec),
			Vector:    vec,
			CreatedAt: retrieverEpoch,
		})
	}
	require.NoError(t, store.UpsertEmbeddings(context.Background(), rows))
}

func enabledSettings() domain.RetrievalSettings {
	settings := domain.DefaultRetrievalSettings()
	settings.Enabled = true
	return settings
}

func globalRequest(query string) driving.RetrieveRequest {
	return driving.RetrieveRequest{
		Query:    query,
		Scope:    domain.GlobalScope(),
		Settings: enabledSettings(),
	}
}

func TestRetrieverService_EmptyCorpus(t *testing.T) {
	svc := newRetriever(memory.NewStore(), nil, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("hello"))
	require.NoError(t, err)

	assert.False(t, result.Grounded)
	assert.Empty(t, result.ContextText)
	assert.Empty(t, result.Citations)
	assert.Empty(t, result.Chunks)
	assert.Equal(t, domain.GlobalScope(), result.UsedScope)
	assert.Contains(t, result.Debug.Notes, "no grounded evidence: broaden the scope or index more documents")
}

func TestRetrieverService_InvalidRequests(t *testing.T) {
	svc := newRetriever(memory.NewStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, driving.RetrieveRequest{Query: "   ", Scope: domain.GlobalScope()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Retrieve(ctx, driving.RetrieveRequest{Query: "hello", Scope: domain.Scope{Kind: domain.ScopeSession}})
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestRetrieverService_LexicalOnly(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-a", "paper.pdf"), "",
		mkChunk("chunk-a0", 0, "Alpha", "Beta gamma delta."))
	svc := newRetriever(store, nil, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("gamma"))
	require.NoError(t, err)

	assert.True(t, result.Grounded)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "chunk-a0", result.Chunks[0].ChunkID)
	require.NotNil(t, result.Chunks[0].LexicalScore)
	assert.Nil(t, result.Chunks[0].VectorScore)

	expected := "<retrieved-context>\n[1] paper.pdf | Alpha\nBeta gamma delta.\n</retrieved-context>"
	assert.Equal(t, expected, result.ContextText)

	require.Len(t, result.Citations, 1)
	assert.Equal(t, 1, result.Citations[0].Marker)
	assert.Equal(t, "doc-a", result.Citations[0].DocumentID)
	assert.Equal(t, "Alpha", result.Citations[0].SectionTitle)

	assert.Contains(t, result.Debug.Notes, "lexical-only: embedding provider unavailable")
}

func TestRetrieverService_HybridFusion(t *testing.T) {
	store := memory.NewStore()
	embedder := newMockEmbedder()
	embedder.fixed = map[string][]float32{
		"quick brown fox": {1, 0, 0, 0},
	}

	// Doc A wins on vectors, Doc B wins lexically; fusion combines the
	// evidence and Doc A's two appearances outrank Doc B's one.
	seedRetrievalDoc(t, store, retrievalDoc("doc-a", "a.pdf"), "",
		mkChunk("chunk-a0", 0, "", "the fox jumps over the fence"))
	seedRetrievalDoc(t, store, retrievalDoc("doc-b", "b.pdf"), "",
		mkChunk("chunk-b0", 0, "", "quick brown quick brown movement"))
	seedVectors(t, store, embedder.model, map[string][]float32{
		"chunk-a0": {0.9, 0.1, 0, 0},
		"chunk-b0": {0, 0, 1, 0},
	})

	svc := newRetriever(store, embedder, nil)
	req := globalRequest("quick brown fox")
	req.Settings.KLex = 2
	req.Settings.KVec = 2

	result, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "chunk-a0", result.Chunks[0].ChunkID,
		"lexical rank 2 plus vector rank 1 beats lexical rank 1 alone")
	assert.Equal(t, "chunk-b0", result.Chunks[1].ChunkID)
	assert.Greater(t, result.Chunks[0].FusedScore, result.Chunks[1].FusedScore)

	require.NotNil(t, result.Chunks[0].LexicalScore)
	require.NotNil(t, result.Chunks[0].VectorScore)
	assert.InDelta(t, 0.99, *result.Chunks[0].VectorScore, 0.05)
	assert.Nil(t, result.Chunks[1].VectorScore, "orthogonal vector contributes nothing")

	assert.Equal(t, 2, result.Debug.LexicalCandidates)
	assert.Equal(t, 1, result.Debug.VectorCandidates)
	assert.Equal(t, 2, result.Debug.FusedCandidates)
}

func TestRetrieverService_ScopeIsolation(t *testing.T) {
	store := memory.NewStore()

	// Doc X would dominate lexically but lives outside the session.
	seedRetrievalDoc(t, store, retrievalDoc("doc-x", "global.pdf"), "",
		mkChunk("chunk-x0", 0, "", "alpha alpha alpha alpha alpha"))
	seedRetrievalDoc(t, store, retrievalDoc("doc-y", "session.pdf"), "sess-1",
		mkChunk("chunk-y0", 0, "", "alpha once"))

	svc := newRetriever(store, nil, nil)
	req := globalRequest("alpha")
	req.Scope = domain.SessionScope("sess-1")

	result, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "doc-y", result.Chunks[0].DocumentID, "out-of-scope documents never leak in")
	assert.Equal(t, domain.SessionScope("sess-1"), result.UsedScope)
}

func TestRetrieverService_Determinism(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-p", "p.pdf"), "",
		mkChunk("chunk-pb", 0, "", "storage subsystem"))
	seedRetrievalDoc(t, store, retrievalDoc("doc-q", "q.pdf"), "",
		mkChunk("chunk-pa", 0, "", "network subsystem"))

	svc := newRetriever(store, nil, nil)
	req := globalRequest("storage")
	req.Variants = []string{"network"}

	first, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)

	// Equal fused scores from disjoint variant lists break on
	// chunk_index, then chunk_id.
	require.Len(t, first.Chunks, 2)
	assert.Equal(t, "chunk-pa", first.Chunks[0].ChunkID)
	assert.Equal(t, "chunk-pb", first.Chunks[1].ChunkID)

	assert.Equal(t, first.ContextText, second.ContextText, "fixed state yields byte-identical context")
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, []string{"storage", "network"}, first.Debug.Variants)
}

func TestRetrieverService_VariantDedup(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-a", "a.pdf"), "",
		mkChunk("chunk-a0", 0, "", "alpha"))
	svc := newRetriever(store, nil, nil)

	req := globalRequest("Alpha")
	req.Variants = []string{"alpha", "", "ALPHA", "alpha topics", "alpha details", "alpha overview"}

	result, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha", "alpha topics", "alpha details", "alpha overview"}, result.Debug.Variants,
		"echoes and blanks dropped, capped at four including the original")
}

func TestRetrieverService_AdjacencyDedup(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-a", "a.pdf"), "",
		mkChunk("chunk-a0", 0, "", "alpha alpha alpha"),
		mkChunk("chunk-a1", 1, "", "alpha alpha"),
		mkChunk("chunk-a2", 2, "", "alpha"))

	svc := newRetriever(store, nil, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("alpha"))
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2, "the neighbour of a selected chunk is dropped")
	assert.Equal(t, "chunk-a0", result.Chunks[0].ChunkID)
	assert.Equal(t, "chunk-a2", result.Chunks[1].ChunkID)
}

func TestRetrieverService_DiversityPenalty(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
		mkChunk("chunk-1a", 0, "", "engine engine engine"),
		mkChunk("chunk-1b", 5, "", "engine engine"))
	seedRetrievalDoc(t, store, retrievalDoc("doc-2", "two.pdf"), "",
		mkChunk("chunk-2a", 0, "", "engine"))

	svc := newRetriever(store, nil, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("engine"))
	require.NoError(t, err)

	require.Len(t, result.Chunks, 3)
	assert.Equal(t, "chunk-1a", result.Chunks[0].ChunkID)
	assert.Equal(t, "chunk-2a", result.Chunks[1].ChunkID,
		"the second chunk from the same document is penalised below the other document")
	assert.Equal(t, "chunk-1b", result.Chunks[2].ChunkID)
}

func TestRetrieverService_SectionTitleBonus(t *testing.T) {
	store := memory.NewStore()
	// chunk-aa ranks first inside the lexical list; the titled chunk
	// overtakes it through the rerank bonus.
	seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
		mkChunk("chunk-aa", 0, "", "alpha notes"))
	seedRetrievalDoc(t, store, retrievalDoc("doc-2", "two.pdf"), "",
		mkChunk("chunk-bb", 0, "Background", "alpha notes"))

	svc := newRetriever(store, nil, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("alpha"))
	require.NoError(t, err)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "chunk-bb", result.Chunks[0].ChunkID)
}

func TestRetrieverService_SessionRecencyBonus(t *testing.T) {
	store := memory.NewStore()

	oldDoc := retrievalDoc("doc-old", "old.pdf")
	oldDoc.IndexedAt = retrieverEpoch.Add(-24 * time.Hour)
	newDoc := retrievalDoc("doc-new", "new.pdf")

	// chunk-aa sorts ahead of chunk-bb inside the lexical list, so the
	// newer document only wins when the recency bonus applies.
	seedRetrievalDoc(t, store, oldDoc, "sess-1", mkChunk("chunk-aa", 0, "", "alpha notes"))
	seedRetrievalDoc(t, store, newDoc, "sess-1", mkChunk("chunk-bb", 0, "", "alpha notes"))

	svc := newRetriever(store, nil, nil)

	global, err := svc.Retrieve(context.Background(), globalRequest("alpha"))
	require.NoError(t, err)
	require.Len(t, global.Chunks, 2)
	assert.Equal(t, "chunk-aa", global.Chunks[0].ChunkID, "no recency bonus outside session scope")

	req := globalRequest("alpha")
	req.Scope = domain.SessionScope("sess-1")
	session, err := svc.Retrieve(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, session.Chunks, 2)
	assert.Equal(t, "chunk-bb", session.Chunks[0].ChunkID, "newer document wins in session scope")
}

func TestRetrieverService_LLMRerank(t *testing.T) {
	seed := func(t *testing.T) *memory.Store {
		store := memory.NewStore()
		seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
			mkChunk("chunk-a", 0, "", "alpha alpha alpha"))
		seedRetrievalDoc(t, store, retrievalDoc("doc-2", "two.pdf"), "",
			mkChunk("chunk-b", 0, "", "alpha alpha"))
		return store
	}

	rerankRequest := func() driving.RetrieveRequest {
		req := globalRequest("alpha")
		req.Settings.EnableLLMRerank = true
		return req
	}

	t.Run("valid permutation is adopted", func(t *testing.T) {
		reranker := &mockReranker{reorder: func(c []domain.Candidate) []domain.Candidate {
			out := append([]domain.Candidate(nil), c...)
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			return out
		}}
		svc := newRetriever(seed(t), nil, reranker)

		result, err := svc.Retrieve(context.Background(), rerankRequest())
		require.NoError(t, err)
		require.Len(t, result.Chunks, 2)
		assert.Equal(t, "chunk-b", result.Chunks[0].ChunkID)
		assert.Equal(t, 1, reranker.calls)
	})

	t.Run("failure keeps heuristic order", func(t *testing.T) {
		reranker := &mockReranker{err: errors.New("model offline")}
		svc := newRetriever(seed(t), nil, reranker)

		result, err := svc.Retrieve(context.Background(), rerankRequest())
		require.NoError(t, err)
		require.Len(t, result.Chunks, 2)
		assert.Equal(t, "chunk-a", result.Chunks[0].ChunkID)
		assert.Contains(t, result.Debug.Notes, "llm rerank failed: heuristic order kept")
	})

	t.Run("dropped candidate keeps heuristic order", func(t *testing.T) {
		reranker := &mockReranker{reorder: func(c []domain.Candidate) []domain.Candidate {
			return c[:1]
		}}
		svc := newRetriever(seed(t), nil, reranker)

		result, err := svc.Retrieve(context.Background(), rerankRequest())
		require.NoError(t, err)
		require.Len(t, result.Chunks, 2)
		assert.Equal(t, "chunk-a", result.Chunks[0].ChunkID)
		assert.Contains(t, result.Debug.Notes, "llm rerank invalid: heuristic order kept")
	})

	t.Run("disabled setting never calls the capability", func(t *testing.T) {
		reranker := &mockReranker{}
		svc := newRetriever(seed(t), nil, reranker)

		req := rerankRequest()
		req.Settings.EnableLLMRerank = false
		_, err := svc.Retrieve(context.Background(), req)
		require.NoError(t, err)
		assert.Zero(t, reranker.calls)
	})
}

func TestRetrieverService_CharacterBudget(t *testing.T) {
	longA := strings.Repeat("alpha ", 70)  // ~420 chars
	longB := strings.Repeat("alpha ", 60)  // ~360 chars
	oversize := strings.Repeat("alpha ", 200) // ~1200 chars

	t.Run("budget stops selection", func(t *testing.T) {
		store := memory.NewStore()
		seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
			mkChunk("chunk-a", 0, "", longA))
		seedRetrievalDoc(t, store, retrievalDoc("doc-2", "two.pdf"), "",
			mkChunk("chunk-b", 0, "", longB))
		svc := newRetriever(store, nil, nil)

		req := globalRequest("alpha")
		req.Settings.MaxContextChars = 500
		result, err := svc.Retrieve(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, result.Chunks, 1, "second chunk would exceed the character budget")
	})

	t.Run("first chunk always fits", func(t *testing.T) {
		store := memory.NewStore()
		seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
			mkChunk("chunk-a", 0, "", oversize))
		svc := newRetriever(store, nil, nil)

		req := globalRequest("alpha")
		req.Settings.MaxContextChars = 500
		result, err := svc.Retrieve(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, result.Chunks, 1)
		assert.True(t, result.Grounded)
	})
}

func TestRetrieverService_ZeroNormVector(t *testing.T) {
	store := memory.NewStore()
	embedder := newMockEmbedder()
	embedder.fixed = map[string][]float32{"alpha": {1, 0, 0, 0}}

	seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
		mkChunk("chunk-a", 0, "", "alpha"))
	seedVectors(t, store, embedder.model, map[string][]float32{
		"chunk-a": {0, 0, 0, 0},
	})

	svc := newRetriever(store, embedder, nil)

	result, err := svc.Retrieve(context.Background(), globalRequest("alpha"))
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Nil(t, result.Chunks[0].VectorScore, "zero-norm vectors score 0 and add no rank signal")
}

// ctxAwareStore makes the in-memory store honour context expiry the way
// the sqlite driver does.
type ctxAwareStore struct {
	*memory.Store
}

func (s ctxAwareStore) SearchLexical(ctx context.Context, query string, scope domain.Scope, limit int) ([]driven.LexicalHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.SearchLexical(ctx, query, scope, limit)
}

func TestRetrieverService_SoftDeadline(t *testing.T) {
	store := memory.NewStore()
	seedRetrievalDoc(t, store, retrievalDoc("doc-1", "one.pdf"), "",
		mkChunk("chunk-a", 0, "", "alpha"))

	svc := NewRetrieverService(ctxAwareStore{store}, nil, nil, clock.NewFake(retrieverEpoch), logger.Nop())
	svc.deadline = -time.Second

	result, err := svc.Retrieve(context.Background(), globalRequest("alpha"))
	require.NoError(t, err, "the soft deadline degrades, it does not fail")
	assert.False(t, result.Grounded)

	found := false
	for _, note := range result.Debug.Notes {
		if strings.Contains(note, "soft deadline exceeded") {
			found = true
		}
	}
	assert.True(t, found, "debug notes record the deadline degradation")
}
