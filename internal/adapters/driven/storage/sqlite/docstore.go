package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// documentColumns is the canonical select list for document rows.
const documentColumns = `id, workspace_id, artifact_entry_id, source_type, source_name,
	source_path, content_hash, file_size, indexed_at, stale_at,
	embedding_status, embedding_model, embedding_error`

// ==================== Workspace Store ====================

// workspaceStore implements driven.WorkspaceStore.
type workspaceStore struct {
	store *Store
}

var _ driven.WorkspaceStore = (*workspaceStore)(nil)

// EnsureWorkspace creates the workspace if it does not exist.
func (s *workspaceStore) EnsureWorkspace(ctx context.Context, ws domain.Workspace) error {
	if ws.ID == "" {
		return domain.ErrInvalidInput
	}

	createdAt := ws.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workspaces (id, name, created_at)
		VALUES (?, ?, ?)
	`, ws.ID, ws.Name, createdAt)

	if err != nil {
		return fmt.Errorf("ensuring workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *workspaceStore) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM workspaces WHERE id = ?
	`, id)

	var ws domain.Workspace
	var createdAt sql.NullTime
	if err := row.Scan(&ws.ID, &ws.Name, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning workspace: %w", err)
	}
	if createdAt.Valid {
		ws.CreatedAt = createdAt.Time
	}

	return &ws, nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document. The unique index on
// (workspace_id, content_hash) rejects a second document with the same
// corpus identity.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}

	now := time.Now().UTC()
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, workspace_id, artifact_entry_id, source_type, source_name,
			source_path, content_hash, file_size, indexed_at, stale_at,
			embedding_status, embedding_model, embedding_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			artifact_entry_id = excluded.artifact_entry_id,
			source_type = excluded.source_type,
			source_name = excluded.source_name,
			source_path = excluded.source_path,
			content_hash = excluded.content_hash,
			file_size = excluded.file_size,
			indexed_at = excluded.indexed_at,
			stale_at = excluded.stale_at,
			embedding_status = excluded.embedding_status,
			embedding_model = excluded.embedding_model,
			embedding_error = excluded.embedding_error,
			updated_at = excluded.updated_at
	`, doc.ID, doc.WorkspaceID, nullStringPtr(doc.ArtifactEntryID), string(doc.SourceType),
		doc.SourceName, nullString(doc.SourcePath), doc.ContentHash, doc.FileSize,
		nullTime(doc.IndexedAt), nullTimePtr(doc.StaleAt),
		string(doc.EmbeddingState), nullString(doc.EmbeddingModel), nullString(doc.EmbeddingError),
		now, now)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document with this content already exists in workspace: %w", domain.ErrAlreadyExists)
		}
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	return scanDocument(row)
}

// GetDocumentByHash retrieves a document by its corpus identity.
func (s *documentStore) GetDocumentByHash(ctx context.Context, workspaceID, contentHash string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE workspace_id = ? AND content_hash = ?`,
		workspaceID, contentHash)

	return scanDocument(row)
}

// TouchDocument advances indexed_at and clears stale_at.
func (s *documentStore) TouchDocument(ctx context.Context, id string, indexedAt time.Time) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents
		SET indexed_at = ?, stale_at = NULL, updated_at = ?
		WHERE id = ?
	`, indexedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touching document: %w", err)
	}
	return requireRow(res)
}

// SetEmbeddingState records the outcome of the embedding phase.
func (s *documentStore) SetEmbeddingState(ctx context.Context, id string, state domain.EmbeddingState, model, errMsg string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents
		SET embedding_status = ?, embedding_model = ?, embedding_error = ?, updated_at = ?
		WHERE id = ?
	`, string(state), nullString(model), nullString(errMsg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting embedding state: %w", err)
	}
	return requireRow(res)
}

// MarkStale sets stale_at, making the document a cleanup candidate.
func (s *documentStore) MarkStale(ctx context.Context, id string, staleAt time.Time) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET stale_at = ?, updated_at = ? WHERE id = ?
	`, staleAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking document stale: %w", err)
	}
	return requireRow(res)
}

// ReplaceChunks atomically swaps the document's chunks and their
// lexical rows. Readers never observe a chunk without its lexical row.
func (s *documentStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk, sourceName string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks_fts
		WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
	`, documentID); err != nil {
		return fmt.Errorf("clearing lexical rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, section_title, content, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer chunkStmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts (chunk_id, content, section_title, source_name)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing lexical statement: %w", err)
	}
	defer ftsStmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, chunk.ID, documentID, chunk.ChunkIndex,
			nullString(chunk.SectionTitle), chunk.Content, chunk.TokenCount, now); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
		if _, err := ftsStmt.ExecContext(ctx, chunk.ID, chunk.Content,
			chunk.SectionTitle, sourceName); err != nil {
			return fmt.Errorf("saving lexical row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by position.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, section_title, content, token_count
		FROM chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var sectionTitle sql.NullString
		var tokenCount sql.NullInt64
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex,
			&sectionTitle, &chunk.Content, &tokenCount); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.SectionTitle = sectionTitle.String
		chunk.TokenCount = int(tokenCount.Int64)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// DeleteDocument removes a document. Chunks, embeddings, and session
// links cascade; lexical and registry rows are cleared explicitly since
// neither participates in foreign keys.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var sourcePath sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT source_path FROM documents WHERE id = ?", id).Scan(&sourcePath)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading document path: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM chunks_fts
		WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)
	`, id); err != nil {
		return fmt.Errorf("clearing lexical rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	if sourcePath.Valid && sourcePath.String != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM index_registry WHERE source_path = ?", sourcePath.String); err != nil {
			return fmt.Errorf("clearing registry row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListDocuments returns documents in a workspace, most recently indexed
// first.
func (s *documentStore) ListDocuments(ctx context.Context, workspaceID string) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE workspace_id = ? ORDER BY indexed_at DESC`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// LinkSession attaches a document to a session.
func (s *documentStore) LinkSession(ctx context.Context, documentID, sessionID string, at time.Time) error {
	if documentID == "" || sessionID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO document_sessions (document_id, session_id, created_at)
		VALUES (?, ?, ?)
	`, documentID, sessionID, at)
	if err != nil {
		return fmt.Errorf("linking session: %w", err)
	}
	return nil
}

// ListStaleDocuments returns session-linked documents whose stale_at is
// before the cutoff.
func (s *documentStore) ListStaleDocuments(ctx context.Context, cutoff time.Time) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT DISTINCT `+docColumnsQualified("d")+`
		FROM documents d
		JOIN document_sessions s ON s.document_id = d.id
		WHERE d.stale_at IS NOT NULL AND d.stale_at < ?
		ORDER BY d.id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ==================== Helper Functions ====================

// docColumnsQualified prefixes the document select list with a table alias.
func docColumnsQualified(alias string) string {
	return alias + `.id, ` + alias + `.workspace_id, ` + alias + `.artifact_entry_id, ` +
		alias + `.source_type, ` + alias + `.source_name, ` + alias + `.source_path, ` +
		alias + `.content_hash, ` + alias + `.file_size, ` + alias + `.indexed_at, ` +
		alias + `.stale_at, ` + alias + `.embedding_status, ` + alias + `.embedding_model, ` +
		alias + `.embedding_error`
}

// requireRow maps a zero-row update to domain.ErrNotFound.
func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var artifactEntryID, sourcePath, embeddingModel, embeddingError sql.NullString
	var fileSize sql.NullInt64
	var indexedAt, staleAt sql.NullTime
	var sourceType, embeddingStatus string

	if err := row.Scan(&doc.ID, &doc.WorkspaceID, &artifactEntryID, &sourceType, &doc.SourceName,
		&sourcePath, &doc.ContentHash, &fileSize, &indexedAt, &staleAt,
		&embeddingStatus, &embeddingModel, &embeddingError); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	hydrateDocument(&doc, artifactEntryID, sourceType, sourcePath, fileSize,
		indexedAt, staleAt, embeddingStatus, embeddingModel, embeddingError)
	return &doc, nil
}

// scanDocuments scans document rows from a query.
func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		var artifactEntryID, sourcePath, embeddingModel, embeddingError sql.NullString
		var fileSize sql.NullInt64
		var indexedAt, staleAt sql.NullTime
		var sourceType, embeddingStatus string

		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &artifactEntryID, &sourceType, &doc.SourceName,
			&sourcePath, &doc.ContentHash, &fileSize, &indexedAt, &staleAt,
			&embeddingStatus, &embeddingModel, &embeddingError); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		hydrateDocument(&doc, artifactEntryID, sourceType, sourcePath, fileSize,
			indexedAt, staleAt, embeddingStatus, embeddingModel, embeddingError)
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// hydrateDocument assigns scanned nullable columns onto the document.
func hydrateDocument(doc *domain.Document,
	artifactEntryID sql.NullString, sourceType string, sourcePath sql.NullString,
	fileSize sql.NullInt64, indexedAt, staleAt sql.NullTime,
	embeddingStatus string, embeddingModel, embeddingError sql.NullString,
) {
	if artifactEntryID.Valid {
		doc.ArtifactEntryID = &artifactEntryID.String
	}
	doc.SourceType = domain.SourceType(sourceType)
	doc.SourcePath = sourcePath.String
	doc.FileSize = fileSize.Int64
	if indexedAt.Valid {
		doc.IndexedAt = indexedAt.Time
	}
	doc.StaleAt = timePtr(staleAt)
	doc.EmbeddingState = domain.EmbeddingState(embeddingStatus)
	doc.EmbeddingModel = embeddingModel.String
	doc.EmbeddingError = embeddingError.String
}
