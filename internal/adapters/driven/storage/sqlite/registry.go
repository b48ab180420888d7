package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opencanvas/ragengine/internal/core/domain"
	"github.com/opencanvas/ragengine/internal/core/ports/driven"
)

// registryStore implements driven.RegistryStore.
type registryStore struct {
	store *Store
}

var _ driven.RegistryStore = (*registryStore)(nil)

// UpsertEntry inserts or replaces the entry for its path. A new content
// hash for a known path replaces the old row wholesale.
func (s *registryStore) UpsertEntry(ctx context.Context, entry domain.RegistryEntry) error {
	if entry.SourcePath == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO index_registry (source_path, content_hash, status, retry_count,
			last_seen_at, last_indexed_at, error_message, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			status = excluded.status,
			retry_count = excluded.retry_count,
			last_seen_at = excluded.last_seen_at,
			last_indexed_at = excluded.last_indexed_at,
			error_message = excluded.error_message,
			embedding_model = excluded.embedding_model
	`, entry.SourcePath, entry.ContentHash, string(entry.Status), entry.RetryCount,
		nullTime(entry.LastSeenAt), nullTimePtr(entry.LastIndexedAt),
		nullString(entry.ErrorMessage), nullString(entry.EmbeddingModel))

	if err != nil {
		return fmt.Errorf("upserting registry entry: %w", err)
	}
	return nil
}

// GetEntry retrieves the entry for a path.
func (s *registryStore) GetEntry(ctx context.Context, sourcePath string) (*domain.RegistryEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_path, content_hash, status, retry_count,
			last_seen_at, last_indexed_at, error_message, embedding_model
		FROM index_registry WHERE source_path = ?
	`, sourcePath)

	var entry domain.RegistryEntry
	var status string
	var lastSeenAt, lastIndexedAt sql.NullTime
	var errorMessage, embeddingModel sql.NullString

	if err := row.Scan(&entry.SourcePath, &entry.ContentHash, &status, &entry.RetryCount,
		&lastSeenAt, &lastIndexedAt, &errorMessage, &embeddingModel); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning registry entry: %w", err)
	}

	entry.Status = domain.RegistryStatus(status)
	if lastSeenAt.Valid {
		entry.LastSeenAt = lastSeenAt.Time
	}
	entry.LastIndexedAt = timePtr(lastIndexedAt)
	entry.ErrorMessage = errorMessage.String
	entry.EmbeddingModel = embeddingModel.String

	return &entry, nil
}

// MarkSeen refreshes last_seen_at without touching status.
func (s *registryStore) MarkSeen(ctx context.Context, sourcePath string, at time.Time) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE index_registry SET last_seen_at = ? WHERE source_path = ?", at, sourcePath)
	if err != nil {
		return fmt.Errorf("marking registry entry seen: %w", err)
	}
	return requireRow(res)
}

// SetStatus transitions the entry's status. An indexed transition also
// records last_indexed_at and resets the retry count.
func (s *registryStore) SetStatus(ctx context.Context, sourcePath string, status domain.RegistryStatus, errMsg string, at time.Time) error {
	var res sql.Result
	var err error

	if status == domain.RegistryIndexed {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE index_registry
			SET status = ?, error_message = ?, last_indexed_at = ?, retry_count = 0
			WHERE source_path = ?
		`, string(status), nullString(errMsg), at, sourcePath)
	} else {
		res, err = s.store.db.ExecContext(ctx, `
			UPDATE index_registry
			SET status = ?, error_message = ?
			WHERE source_path = ?
		`, string(status), nullString(errMsg), sourcePath)
	}

	if err != nil {
		return fmt.Errorf("setting registry status: %w", err)
	}
	return requireRow(res)
}

// IncrementRetry bumps retry_count and returns the new value.
func (s *registryStore) IncrementRetry(ctx context.Context, sourcePath string) (int, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		"UPDATE index_registry SET retry_count = retry_count + 1 WHERE source_path = ?", sourcePath)
	if err != nil {
		return 0, fmt.Errorf("incrementing retry count: %w", err)
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT retry_count FROM index_registry WHERE source_path = ?", sourcePath).Scan(&count); err != nil {
		return 0, fmt.Errorf("reading retry count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return count, nil
}

// ListEntries returns entries, optionally filtered by status, ordered
// by source_path.
func (s *registryStore) ListEntries(ctx context.Context, status *domain.RegistryStatus) ([]domain.RegistryEntry, error) {
	query := `
		SELECT source_path, content_hash, status, retry_count,
			last_seen_at, last_indexed_at, error_message, embedding_model
		FROM index_registry
	`
	var args []interface{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY source_path"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying registry entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.RegistryEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var entry domain.RegistryEntry
		var entryStatus string
		var lastSeenAt, lastIndexedAt sql.NullTime
		var errorMessage, embeddingModel sql.NullString

		if err := rows.Scan(&entry.SourcePath, &entry.ContentHash, &entryStatus, &entry.RetryCount,
			&lastSeenAt, &lastIndexedAt, &errorMessage, &embeddingModel); err != nil {
			return nil, fmt.Errorf("scanning registry entry: %w", err)
		}

		entry.Status = domain.RegistryStatus(entryStatus)
		if lastSeenAt.Valid {
			entry.LastSeenAt = lastSeenAt.Time
		}
		entry.LastIndexedAt = timePtr(lastIndexedAt)
		entry.ErrorMessage = errorMessage.String
		entry.EmbeddingModel = embeddingModel.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registry entries: %w", err)
	}

	return entries, nil
}

// ResetFailed moves failed entries back to pending with a zero retry
// count, returning how many changed.
func (s *registryStore) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE index_registry
		SET status = ?, retry_count = 0, error_message = NULL
		WHERE status = ?
	`, string(domain.RegistryPending), string(domain.RegistryFailed))
	if err != nil {
		return 0, fmt.Errorf("resetting failed entries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return int(affected), nil
}
