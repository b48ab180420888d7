package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// searchStore implements driven.SearchStore.
type searchStore struct {
	store *Store
}

var _ driven.SearchStore = (*searchStore)(nil)

// SearchLexical runs a sanitised full-text match under the scope and
// returns up to limit hits ordered by ascending bm25 score (lower is
// better). A degenerate query yields no hits, not an error.
func (s *searchStore) SearchLexical(ctx context.Context, query string, scope domain.Scope, limit int) ([]driven.LexicalHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	match := sanitizeMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	var rows *sql.Rows
	var err error
	if scope.Kind == domain.ScopeSession {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT chunks_fts.chunk_id, bm25(chunks_fts) AS score
			FROM chunks_fts
			JOIN chunks c ON c.id = chunks_fts.chunk_id
			JOIN documents d ON d.id = c.document_id
			JOIN document_sessions ds ON ds.document_id = d.id
			WHERE ds.session_id = ? AND chunks_fts MATCH ?
			ORDER BY score
			LIMIT ?
		`, scope.SessionID, match, limit)
	} else {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT chunks_fts.chunk_id, bm25(chunks_fts) AS score
			FROM chunks_fts
			JOIN chunks c ON c.id = chunks_fts.chunk_id
			JOIN documents d ON d.id = c.document_id
			WHERE d.workspace_id = ? AND chunks_fts MATCH ?
			ORDER BY score
			LIMIT ?
		`, scopeWorkspaceID(scope), match, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying lexical index: %w", err)
	}
	defer rows.Close()

	var hits []driven.LexicalHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning lexical hit: %w", err)
		}
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical hits: %w", err)
	}

	return hits, nil
}

// LoadEmbeddings returns every stored vector permitted by the scope
// under the given model.
func (s *searchStore) LoadEmbeddings(ctx context.Context, scope domain.Scope, model string) ([]driven.VectorRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if model == "" {
		return nil, nil
	}

	var rows *sql.Rows
	var err error
	if scope.Kind == domain.ScopeSession {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT e.chunk_id, e.embedding_blob
			FROM embeddings e
			JOIN chunks c ON c.id = e.chunk_id
			JOIN documents d ON d.id = c.document_id
			JOIN document_sessions ds ON ds.document_id = d.id
			WHERE ds.session_id = ? AND e.model = ?
		`, scope.SessionID, model)
	} else {
		rows, err = s.store.db.QueryContext(ctx, `
			SELECT e.chunk_id, e.embedding_blob
			FROM embeddings e
			JOIN chunks c ON c.id = e.chunk_id
			JOIN documents d ON d.id = c.document_id
			WHERE d.workspace_id = ? AND e.model = ?
		`, scopeWorkspaceID(scope), model)
	}
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var records []driven.VectorRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var record driven.VectorRecord
		var blob []byte
		if err := rows.Scan(&record.ChunkID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		record.Vector = bytesToFloat32Slice(blob)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	return records, nil
}

// GetChunkDetails hydrates the given chunks. Unknown IDs are silently
// absent from the result.
func (s *searchStore) GetChunkDetails(ctx context.Context, chunkIDs []string) ([]driven.ChunkDetails, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.section_title, c.content,
			d.source_name, d.indexed_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunk details: %w", err)
	}
	defer rows.Close()

	var details []driven.ChunkDetails //nolint:prealloc // size unknown from query
	for rows.Next() {
		var d driven.ChunkDetails
		var sectionTitle sql.NullString
		var indexedAt sql.NullTime
		if err := rows.Scan(&d.ChunkID, &d.DocumentID, &d.ChunkIndex, &sectionTitle,
			&d.Content, &d.SourceName, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk details: %w", err)
		}
		d.SectionTitle = sectionTitle.String
		if indexedAt.Valid {
			d.UpdatedAt = indexedAt.Time
		}
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk details: %w", err)
	}

	return details, nil
}

// scopeWorkspaceID resolves the workspace filter for non-session scopes.
func scopeWorkspaceID(scope domain.Scope) string {
	if scope.Kind == domain.ScopeGlobal {
		return domain.GlobalWorkspaceID
	}
	return scope.WorkspaceID
}

// ftsOperatorRunes are stripped from query tokens before matching.
// Everything else is neutralised by quoting the token.
const ftsOperatorRunes = `"(){}*^:`

// sanitizeMatchQuery translates free text into a safe FTS5 MATCH
// expression: operator characters are stripped, each remaining token is
// quoted, and tokens are joined with OR so any term can match. An
// empty result means the query is degenerate and must yield no hits.
func sanitizeMatchQuery(query string) string {
	fields := strings.Fields(query)

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if strings.ContainsRune(ftsOperatorRunes, r) {
				return -1
			}
			return r
		}, field)
		if cleaned == "" {
			continue
		}
		tokens = append(tokens, `"`+cleaned+`"`)
	}

	return strings.Join(tokens, " OR ")
}
