package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// newTestStore creates a store backed by a real database in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// seedWorkspace creates a workspace for tests that need a non-global one.
func seedWorkspace(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.WorkspaceStore().EnsureWorkspace(context.Background(), domain.Workspace{
		ID:   id,
		Name: id,
	})
	require.NoError(t, err)
}

// seedDocument inserts a document with two chunks and lexical rows.
func seedDocument(t *testing.T, store *Store, doc domain.Document, contents []string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.DocumentStore().SaveDocument(ctx, &doc))

	chunks := make([]domain.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = domain.Chunk{
			ID:         doc.ID + "-c" + string(rune('0'+i)),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			TokenCount: len(content) / 4,
		}
	}
	require.NoError(t, store.DocumentStore().ReplaceChunks(ctx, doc.ID, chunks, doc.SourceName))
}

// TestNewStore tests initialization, reopening, and the GLOBAL seed.
func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rag.db"), store.Path())

	ws, err := store.WorkspaceStore().GetWorkspace(context.Background(), domain.GlobalWorkspaceID)
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalWorkspaceID, ws.ID)

	require.NoError(t, store.Close())

	// Reopening must be idempotent.
	store, err = NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

// TestWorkspaceStore tests ensure and get.
func TestWorkspaceStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ws := store.WorkspaceStore()

	require.NoError(t, ws.EnsureWorkspace(ctx, domain.Workspace{ID: "w1", Name: "Workspace One"}))

	// Ensuring again must not clobber.
	require.NoError(t, ws.EnsureWorkspace(ctx, domain.Workspace{ID: "w1", Name: "Renamed"}))

	got, err := ws.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Workspace One", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = ws.GetWorkspace(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, ws.EnsureWorkspace(ctx, domain.Workspace{}), domain.ErrInvalidInput)
}

// TestDocumentStore_SaveAndGet tests the document roundtrip including
// nullable columns.
func TestDocumentStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := store.DocumentStore()

	artifactID := "artifact-7"
	staleAt := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	doc := domain.Document{
		ID:              "doc-1",
		WorkspaceID:     domain.GlobalWorkspaceID,
		ArtifactEntryID: &artifactID,
		SourceType:      domain.SourcePDF,
		SourceName:      "manual.pdf",
		SourcePath:      "/library/manual.pdf",
		ContentHash:     "abc123",
		FileSize:        2048,
		IndexedAt:       time.Now().UTC().Truncate(time.Second),
		StaleAt:         &staleAt,
		EmbeddingState:  domain.EmbeddingIndexed,
		EmbeddingModel:  "openai/text-embedding-3-small",
	}
	require.NoError(t, docs.SaveDocument(ctx, &doc))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.WorkspaceID, got.WorkspaceID)
	require.NotNil(t, got.ArtifactEntryID)
	assert.Equal(t, artifactID, *got.ArtifactEntryID)
	assert.Equal(t, domain.SourcePDF, got.SourceType)
	assert.Equal(t, "/library/manual.pdf", got.SourcePath)
	assert.Equal(t, int64(2048), got.FileSize)
	require.NotNil(t, got.StaleAt)
	assert.True(t, got.StaleAt.Equal(staleAt))
	assert.Equal(t, domain.EmbeddingIndexed, got.EmbeddingState)

	_, err = docs.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byHash, err := docs.GetDocumentByHash(ctx, domain.GlobalWorkspaceID, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", byHash.ID)

	_, err = docs.GetDocumentByHash(ctx, domain.GlobalWorkspaceID, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestDocumentStore_CorpusIdentity tests that a second document with
// the same (workspace, hash) is rejected.
func TestDocumentStore_CorpusIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := store.DocumentStore()

	first := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "a.pdf",
		ContentHash: "samehash",
	}
	require.NoError(t, docs.SaveDocument(ctx, &first))

	duplicate := first
	duplicate.ID = "doc-2"
	err := docs.SaveDocument(ctx, &duplicate)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// The same content in another workspace is a distinct corpus entry.
	seedWorkspace(t, store, "w1")
	other := first
	other.ID = "doc-3"
	other.WorkspaceID = "w1"
	assert.NoError(t, docs.SaveDocument(ctx, &other))
}

// TestDocumentStore_TouchAndStale tests indexed_at refresh and the
// stale tombstone.
func TestDocumentStore_TouchAndStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := store.DocumentStore()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourceArtifact,
		SourceName:  "notes",
		ContentHash: "h1",
	}
	require.NoError(t, docs.SaveDocument(ctx, &doc))

	staleAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, docs.MarkStale(ctx, "doc-1", staleAt))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got.StaleAt)

	indexedAt := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	require.NoError(t, docs.TouchDocument(ctx, "doc-1", indexedAt))

	got, err = docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, got.StaleAt, "touch must clear the stale tombstone")
	assert.True(t, got.IndexedAt.Equal(indexedAt))

	assert.ErrorIs(t, docs.TouchDocument(ctx, "missing", indexedAt), domain.ErrNotFound)
	assert.ErrorIs(t, docs.MarkStale(ctx, "missing", staleAt), domain.ErrNotFound)
}

// TestDocumentStore_SetEmbeddingState tests embedding phase bookkeeping.
func TestDocumentStore_SetEmbeddingState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := store.DocumentStore()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "a.pdf",
		ContentHash: "h1",
	}
	require.NoError(t, docs.SaveDocument(ctx, &doc))

	err := docs.SetEmbeddingState(ctx, "doc-1", domain.EmbeddingFailed, "m1", "provider unreachable")
	require.NoError(t, err)

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingFailed, got.EmbeddingState)
	assert.Equal(t, "m1", got.EmbeddingModel)
	assert.Equal(t, "provider unreachable", got.EmbeddingError)

	assert.ErrorIs(t,
		docs.SetEmbeddingState(ctx, "missing", domain.EmbeddingIndexed, "m1", ""),
		domain.ErrNotFound)
}

// TestDocumentStore_ReplaceChunks tests the atomic swap of chunks and
// lexical rows.
func TestDocumentStore_ReplaceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "guide.pdf",
		ContentHash: "h1",
	}
	seedDocument(t, store, doc, []string{"zebra habitats in the wild", "giraffe feeding patterns"})

	chunks, err := store.DocumentStore().GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)

	hits, err := store.SearchStore().SearchLexical(ctx, "zebra", domain.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// Replacing must remove the old lexical rows with the old chunks.
	replacement := []domain.Chunk{{
		ID:         "doc-1-new",
		DocumentID: "doc-1",
		ChunkIndex: 0,
		Content:    "lion pride dynamics",
	}}
	require.NoError(t, store.DocumentStore().ReplaceChunks(ctx, "doc-1", replacement, "guide.pdf"))

	hits, err = store.SearchStore().SearchLexical(ctx, "zebra", domain.GlobalScope(), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.SearchStore().SearchLexical(ctx, "lion", domain.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1-new", hits[0].ChunkID)
}

// TestDocumentStore_Delete tests cascade behavior across chunks,
// lexical rows, embeddings, and the registry.
func TestDocumentStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "gone.pdf",
		SourcePath:  "/library/gone.pdf",
		ContentHash: "h1",
	}
	seedDocument(t, store, doc, []string{"ephemeral content for deletion"})

	require.NoError(t, store.EmbeddingStore().UpsertEmbeddings(ctx, []domain.Embedding{{
		ChunkID: "doc-1-c0",
		Model:   "m1",
		Dims:    3,
		Vector:  []float32{1, 0, 0},
	}}))

	require.NoError(t, store.RegistryStore().UpsertEntry(ctx, domain.RegistryEntry{
		SourcePath:  "/library/gone.pdf",
		ContentHash: "h1",
		Status:      domain.RegistryIndexed,
	}))

	require.NoError(t, store.DocumentStore().DeleteDocument(ctx, "doc-1"))

	_, err := store.DocumentStore().GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := store.DocumentStore().GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	hits, err := store.SearchStore().SearchLexical(ctx, "ephemeral", domain.GlobalScope(), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	count, err := store.EmbeddingStore().CountEmbeddings(ctx, "doc-1", "m1")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.RegistryStore().GetEntry(ctx, "/library/gone.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, store.DocumentStore().DeleteDocument(ctx, "doc-1"), domain.ErrNotFound)
}

// TestDocumentStore_ListStaleDocuments tests the cleanup candidate query.
func TestDocumentStore_ListStaleDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	docs := store.DocumentStore()

	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	recent := now.Add(-time.Hour)

	linkedStale := domain.Document{
		ID:          "doc-linked-stale",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "a.pdf",
		ContentHash: "h1",
		StaleAt:     &old,
	}
	require.NoError(t, docs.SaveDocument(ctx, &linkedStale))
	require.NoError(t, docs.LinkSession(ctx, "doc-linked-stale", "session-1", now))

	linkedFresh := domain.Document{
		ID:          "doc-linked-fresh",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "b.pdf",
		ContentHash: "h2",
		StaleAt:     &recent,
	}
	require.NoError(t, docs.SaveDocument(ctx, &linkedFresh))
	require.NoError(t, docs.LinkSession(ctx, "doc-linked-fresh", "session-1", now))

	// Stale but never attached to a session: not a cleanup candidate.
	unlinked := domain.Document{
		ID:          "doc-unlinked",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "c.pdf",
		ContentHash: "h3",
		StaleAt:     &old,
	}
	require.NoError(t, docs.SaveDocument(ctx, &unlinked))

	stale, err := docs.ListStaleDocuments(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "doc-linked-stale", stale[0].ID)
}

// TestEmbeddingStore tests vector persistence and the length invariant.
func TestEmbeddingStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "v.pdf",
		ContentHash: "h1",
	}
	seedDocument(t, store, doc, []string{"first chunk", "second chunk"})

	embeddings := []domain.Embedding{
		{ChunkID: "doc-1-c0", Model: "m1", Dims: 3, Vector: []float32{0.1, 0.2, 0.3}},
		{ChunkID: "doc-1-c1", Model: "m1", Dims: 3, Vector: []float32{0.4, 0.5, 0.6}},
	}
	require.NoError(t, store.EmbeddingStore().UpsertEmbeddings(ctx, embeddings))

	count, err := store.EmbeddingStore().CountEmbeddings(ctx, "doc-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.EmbeddingStore().CountEmbeddings(ctx, "doc-1", "other-model")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Upsert replaces the vector for an existing chunk.
	require.NoError(t, store.EmbeddingStore().UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "doc-1-c0", Model: "m2", Dims: 2, Vector: []float32{1, 1}},
	}))

	records, err := store.SearchStore().LoadEmbeddings(ctx, domain.GlobalScope(), "m2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float32{1, 1}, records[0].Vector)

	// Dims mismatch violates the integrity invariant.
	err = store.EmbeddingStore().UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "doc-1-c1", Model: "m1", Dims: 4, Vector: []float32{1, 2}},
	})
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	require.NoError(t, store.EmbeddingStore().DeleteEmbeddings(ctx, "doc-1"))
	count, err = store.EmbeddingStore().CountEmbeddings(ctx, "doc-1", "m1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// TestRegistryStore tests watcher bookkeeping transitions.
func TestRegistryStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	reg := store.RegistryStore()

	now := time.Now().UTC().Truncate(time.Second)
	entry := domain.RegistryEntry{
		SourcePath:     "/watch/report.pdf",
		ContentHash:    "hash-1",
		Status:         domain.RegistryPending,
		LastSeenAt:     now,
		EmbeddingModel: "m1",
	}
	require.NoError(t, reg.UpsertEntry(ctx, entry))

	got, err := reg.GetEntry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistryPending, got.Status)
	assert.Equal(t, "hash-1", got.ContentHash)
	assert.Nil(t, got.LastIndexedAt)

	// Indexed transition records last_indexed_at and resets retries.
	_, err = reg.IncrementRetry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	indexedAt := now.Add(time.Minute)
	require.NoError(t, reg.SetStatus(ctx, "/watch/report.pdf", domain.RegistryIndexed, "", indexedAt))

	got, err = reg.GetEntry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, domain.RegistryIndexed, got.Status)
	assert.Zero(t, got.RetryCount)
	require.NotNil(t, got.LastIndexedAt)
	assert.True(t, got.LastIndexedAt.Equal(indexedAt))

	// Failure keeps last_indexed_at and records the message.
	require.NoError(t, reg.SetStatus(ctx, "/watch/report.pdf", domain.RegistryFailed, "conversion timed out", now.Add(2*time.Minute)))
	got, err = reg.GetEntry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "conversion timed out", got.ErrorMessage)
	require.NotNil(t, got.LastIndexedAt)

	// A new hash replaces the row for the path.
	entry.ContentHash = "hash-2"
	entry.Status = domain.RegistryPending
	require.NoError(t, reg.UpsertEntry(ctx, entry))
	got, err = reg.GetEntry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.ContentHash)

	count, err := reg.IncrementRetry(ctx, "/watch/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = reg.GetEntry(ctx, "/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, reg.MarkSeen(ctx, "/missing", now), domain.ErrNotFound)
	_, err = reg.IncrementRetry(ctx, "/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// TestRegistryStore_ListAndReset tests filtering and failed-entry reset.
func TestRegistryStore_ListAndReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	reg := store.RegistryStore()

	paths := map[string]domain.RegistryStatus{
		"/watch/a.pdf": domain.RegistryIndexed,
		"/watch/b.pdf": domain.RegistryFailed,
		"/watch/c.pdf": domain.RegistryFailed,
		"/watch/d.pdf": domain.RegistrySkipped,
	}
	for path, status := range paths {
		require.NoError(t, reg.UpsertEntry(ctx, domain.RegistryEntry{
			SourcePath:  path,
			ContentHash: "h",
			Status:      status,
			RetryCount:  2,
		}))
	}

	all, err := reg.ListEntries(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// Ordered by path.
	assert.Equal(t, "/watch/a.pdf", all[0].SourcePath)

	failed := domain.RegistryFailed
	onlyFailed, err := reg.ListEntries(ctx, &failed)
	require.NoError(t, err)
	assert.Len(t, onlyFailed, 2)

	reset, err := reg.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	onlyFailed, err = reg.ListEntries(ctx, &failed)
	require.NoError(t, err)
	assert.Empty(t, onlyFailed)

	pending := domain.RegistryPending
	nowPending, err := reg.ListEntries(ctx, &pending)
	require.NoError(t, err)
	require.Len(t, nowPending, 2)
	assert.Zero(t, nowPending[0].RetryCount)
	assert.Empty(t, nowPending[0].ErrorMessage)
}

// TestSearchStore_ScopePredicate tests that lexical hits never leak
// across workspace or session boundaries.
func TestSearchStore_ScopePredicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedWorkspace(t, store, "w1")

	seedDocument(t, store, domain.Document{
		ID:          "doc-global",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "global.pdf",
		ContentHash: "h1",
	}, []string{"the migration corridor crosses the river"})

	seedDocument(t, store, domain.Document{
		ID:          "doc-workspace",
		WorkspaceID: "w1",
		SourceType:  domain.SourcePDF,
		SourceName:  "ws.pdf",
		ContentHash: "h2",
	}, []string{"the migration schedule for workspace planning"})

	seedDocument(t, store, domain.Document{
		ID:          "doc-session",
		WorkspaceID: "w1",
		SourceType:  domain.SourcePDF,
		SourceName:  "session.pdf",
		ContentHash: "h3",
	}, []string{"the migration budget discussed this session"})
	require.NoError(t, store.DocumentStore().LinkSession(ctx, "doc-session", "session-9", time.Now().UTC()))

	search := store.SearchStore()

	globalHits, err := search.SearchLexical(ctx, "migration", domain.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, globalHits, 1)
	assert.Equal(t, "doc-global-c0", globalHits[0].ChunkID)

	wsHits, err := search.SearchLexical(ctx, "migration", domain.WorkspaceScope("w1"), 10)
	require.NoError(t, err)
	assert.Len(t, wsHits, 2)

	sessionHits, err := search.SearchLexical(ctx, "migration", domain.SessionScope("session-9"), 10)
	require.NoError(t, err)
	require.Len(t, sessionHits, 1)
	assert.Equal(t, "doc-session-c0", sessionHits[0].ChunkID)

	emptyHits, err := search.SearchLexical(ctx, "migration", domain.SessionScope("other-session"), 10)
	require.NoError(t, err)
	assert.Empty(t, emptyHits)

	_, err = search.SearchLexical(ctx, "migration", domain.Scope{Kind: domain.ScopeSession}, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

// TestSearchStore_Ranking tests bm25 ordering and result limits.
func TestSearchStore_Ranking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "rank.pdf",
		ContentHash: "h1",
	}, []string{
		"falcon falcon falcon nesting",
		"a long passage that mentions falcon once among many other unrelated words about weather and food",
	})

	hits, err := store.SearchStore().SearchLexical(ctx, "falcon", domain.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-1-c0", hits[0].ChunkID, "denser match must rank first")
	assert.LessOrEqual(t, hits[0].Score, hits[1].Score)

	limited, err := store.SearchStore().SearchLexical(ctx, "falcon", domain.GlobalScope(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestSearchStore_Sanitization tests that operator input cannot break
// the match expression.
func TestSearchStore_Sanitization(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedDocument(t, store, domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "san.pdf",
		ContentHash: "h1",
	}, []string{"quarterly revenue grew steadily"})

	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{name: "plain token", query: "revenue", expected: 1},
		{name: "injection attempt", query: `revenue") OR (chunks_fts MATCH "x`, expected: 1},
		{name: "operator keywords quoted", query: "revenue AND NOT growth", expected: 1},
		{name: "operators only", query: `* ^ : ( )`, expected: 0},
		{name: "empty query", query: "", expected: 0},
		{name: "whitespace only", query: "   ", expected: 0},
		{name: "or expansion matches any term", query: "quarterly nonexistentterm", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := store.SearchStore().SearchLexical(ctx, tt.query, domain.GlobalScope(), 10)
			require.NoError(t, err)
			assert.Len(t, hits, tt.expected)
		})
	}
}

// TestSearchStore_LoadEmbeddings tests scope and model filtering of
// vector loads.
func TestSearchStore_LoadEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedWorkspace(t, store, "w1")

	seedDocument(t, store, domain.Document{
		ID:          "doc-global",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "g.pdf",
		ContentHash: "h1",
	}, []string{"global vectors"})

	seedDocument(t, store, domain.Document{
		ID:          "doc-ws",
		WorkspaceID: "w1",
		SourceType:  domain.SourcePDF,
		SourceName:  "w.pdf",
		ContentHash: "h2",
	}, []string{"workspace vectors"})

	require.NoError(t, store.EmbeddingStore().UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "doc-global-c0", Model: "m1", Dims: 2, Vector: []float32{1, 0}},
		{ChunkID: "doc-ws-c0", Model: "m1", Dims: 2, Vector: []float32{0, 1}},
	}))

	records, err := store.SearchStore().LoadEmbeddings(ctx, domain.GlobalScope(), "m1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-global-c0", records[0].ChunkID)
	assert.Equal(t, []float32{1, 0}, records[0].Vector)

	records, err = store.SearchStore().LoadEmbeddings(ctx, domain.WorkspaceScope("w1"), "m1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-ws-c0", records[0].ChunkID)

	records, err = store.SearchStore().LoadEmbeddings(ctx, domain.GlobalScope(), "unknown-model")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = store.SearchStore().LoadEmbeddings(ctx, domain.GlobalScope(), "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestSearchStore_GetChunkDetails tests candidate hydration.
func TestSearchStore_GetChunkDetails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := domain.Document{
		ID:          "doc-1",
		WorkspaceID: domain.GlobalWorkspaceID,
		SourceType:  domain.SourcePDF,
		SourceName:  "detail.pdf",
		ContentHash: "h1",
		IndexedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.DocumentStore().SaveDocument(ctx, &doc))
	require.NoError(t, store.DocumentStore().ReplaceChunks(ctx, "doc-1", []domain.Chunk{
		{ID: "c-0", DocumentID: "doc-1", ChunkIndex: 0, SectionTitle: "Intro", Content: "alpha"},
		{ID: "c-1", DocumentID: "doc-1", ChunkIndex: 1, Content: "beta"},
	}, "detail.pdf"))

	details, err := store.SearchStore().GetChunkDetails(ctx, []string{"c-0", "c-1", "c-unknown"})
	require.NoError(t, err)
	require.Len(t, details, 2)

	byID := map[string]driven.ChunkDetails{}
	for _, d := range details {
		byID[d.ChunkID] = d
	}
	assert.Equal(t, "Intro", byID["c-0"].SectionTitle)
	assert.Equal(t, "detail.pdf", byID["c-0"].SourceName)
	assert.Equal(t, 1, byID["c-1"].ChunkIndex)
	assert.False(t, byID["c-0"].UpdatedAt.IsZero())

	empty, err := store.SearchStore().GetChunkDetails(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestSanitizeMatchQuery tests the FTS expression builder directly.
func TestSanitizeMatchQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{name: "single token", query: "hello", expected: `"hello"`},
		{name: "multiple tokens", query: "quick brown fox", expected: `"quick" OR "brown" OR "fox"`},
		{name: "strips operators", query: `foo* (bar) "baz"`, expected: `"foo" OR "bar" OR "baz"`},
		{name: "keywords survive quoted", query: "cats AND dogs", expected: `"cats" OR "AND" OR "dogs"`},
		{name: "operators only", query: `* ^ : { }`, expected: ""},
		{name: "empty", query: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeMatchQuery(tt.query))
		})
	}
}

// TestStoreErrors tests not-found mapping consistency.
func TestStoreErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.DocumentStore().GetDocument(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.WorkspaceStore().GetWorkspace(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = store.RegistryStore().GetEntry(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
