package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/repository"
)

// MetadataPostgres is a PostgreSQL implementation of repository.MetadataRepository.
// It uses database/sql with parameterized queries and contains no business logic.
// The chunk id list is stored as a JSONB column so record shape matches the
// blob-backed repository exactly.
type MetadataPostgres struct {
	db  *sql.DB
	log *zap.Logger
}

// NewMetadataPostgres creates a new MetadataPostgres repository.
func NewMetadataPostgres(db *sql.DB, log *zap.Logger) *MetadataPostgres {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetadataPostgres{db: db, log: log}
}

var _ repository.MetadataRepository = (*MetadataPostgres)(nil)

// Save upserts the record for (tenantID, meta.ID).
func (r *MetadataPostgres) Save(ctx context.Context, tenantID string, meta *model.FileMetadata) error {
	chunkIDs, err := json.Marshal(meta.ChunkIDs)
	if err != nil {
		return fmt.Errorf("encode chunk ids: %w", err)
	}
	const q = `
		INSERT INTO files (tenant_id, id, original_filename, content_type, file_size, created_at, chunk_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			original_filename = EXCLUDED.original_filename,
			content_type      = EXCLUDED.content_type,
			file_size         = EXCLUDED.file_size,
			created_at        = EXCLUDED.created_at,
			chunk_ids         = EXCLUDED.chunk_ids
	`
	_, err = r.db.ExecContext(ctx, q,
		tenantID,
		meta.ID,
		meta.OriginalFilename,
		meta.ContentType,
		meta.FileSize,
		meta.CreatedAt,
		chunkIDs,
	)
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// FindByID fetches a single record scoped to the tenant.
func (r *MetadataPostgres) FindByID(ctx context.Context, tenantID, fileID string) (*model.FileMetadata, error) {
	const q = `
		SELECT id, original_filename, content_type, file_size, created_at, chunk_ids
		FROM files
		WHERE tenant_id = $1 AND id = $2
	`
	row := r.db.QueryRowContext(ctx, q, tenantID, fileID)
	meta, err := scanMetadata(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("metadata %s: %w", fileID, apperr.ErrNotFound)
		}
		if errors.Is(err, errBadChunkIDs) {
			r.log.Error("corrupt metadata record",
				zap.String("tenant_id", tenantID),
				zap.String("file_id", fileID),
				zap.Error(err))
			return nil, fmt.Errorf("metadata %s: %w", fileID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return meta, nil
}

// List returns every readable record for the tenant, oldest first. A row whose
// chunk id column fails to parse is skipped and logged.
func (r *MetadataPostgres) List(ctx context.Context, tenantID string) ([]model.FileMetadata, error) {
	const q = `
		SELECT id, original_filename, content_type, file_size, created_at, chunk_ids
		FROM files
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	items := make([]model.FileMetadata, 0)
	for rows.Next() {
		meta, err := scanMetadata(rows.Scan)
		if err != nil {
			if errors.Is(err, errBadChunkIDs) {
				r.log.Warn("skipping unreadable metadata record",
					zap.String("tenant_id", tenantID),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		items = append(items, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a record. It does not return an error if the row does not exist.
func (r *MetadataPostgres) Delete(ctx context.Context, tenantID, fileID string) error {
	const q = `DELETE FROM files WHERE tenant_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, q, tenantID, fileID); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

var errBadChunkIDs = errors.New("unparseable chunk_ids column")

func scanMetadata(scan func(dest ...any) error) (*model.FileMetadata, error) {
	var meta model.FileMetadata
	var chunkIDs []byte
	if err := scan(
		&meta.ID,
		&meta.OriginalFilename,
		&meta.ContentType,
		&meta.FileSize,
		&meta.CreatedAt,
		&chunkIDs,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chunkIDs, &meta.ChunkIDs); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadChunkIDs, err)
	}
	return &meta, nil
}
