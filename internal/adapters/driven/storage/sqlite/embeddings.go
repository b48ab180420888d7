package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// embeddingStore implements driven.EmbeddingStore.
type embeddingStore struct {
	store *Store
}

var _ driven.EmbeddingStore = (*embeddingStore)(nil)

// UpsertEmbeddings writes vectors keyed by chunk_id, replacing any
// vector a chunk already has.
func (s *embeddingStore) UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	for _, emb := range embeddings {
		if err := emb.Validate(); err != nil {
			return fmt.Errorf("embedding for chunk %s: %w", emb.ChunkID, err)
		}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, model, dims, embedding_blob, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			model = excluded.model,
			dims = excluded.dims,
			embedding_blob = excluded.embedding_blob,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, emb := range embeddings {
		createdAt := emb.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		blob := float32SliceToBytes(emb.Vector)
		if _, err := stmt.ExecContext(ctx, emb.ChunkID, emb.Model, emb.Dims, blob, createdAt); err != nil {
			return fmt.Errorf("saving embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CountEmbeddings reports how many of the document's chunks carry a
// vector under the given model.
func (s *embeddingStore) CountEmbeddings(ctx context.Context, documentID, model string) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		WHERE c.document_id = ? AND e.model = ?
	`, documentID, model).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}

// DeleteEmbeddings removes all vectors for a document.
func (s *embeddingStore) DeleteEmbeddings(ctx context.Context, documentID string) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
	`, documentID)
	if err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	return nil
}
