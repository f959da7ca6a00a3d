package blobjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/repository"
	"filedepot/internal/storage"
)

// MetadataBlobJSON stores one JSON document per file record in the blob
// backend under <tenantID>/metadata/<fileID>.json. With the filesystem
// backend this yields the plain on-disk layout; with the minio backend the
// same keys live in a bucket.
type MetadataBlobJSON struct {
	store storage.Storage
	log   *zap.Logger
}

// NewMetadataBlobJSON creates a blob-backed metadata repository.
func NewMetadataBlobJSON(store storage.Storage, log *zap.Logger) *MetadataBlobJSON {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetadataBlobJSON{store: store, log: log}
}

var _ repository.MetadataRepository = (*MetadataBlobJSON)(nil)

func (r *MetadataBlobJSON) Save(ctx context.Context, tenantID string, meta *model.FileMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := r.store.Put(ctx, storage.MetadataKey(tenantID, meta.ID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

func (r *MetadataBlobJSON) FindByID(ctx context.Context, tenantID, fileID string) (*model.FileMetadata, error) {
	meta, err := r.read(ctx, storage.MetadataKey(tenantID, fileID))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		// An explicitly requested record that fails to parse surfaces as not
		// found; the corruption itself is logged for the operator.
		r.log.Error("corrupt metadata record",
			zap.String("tenant_id", tenantID),
			zap.String("file_id", fileID),
			zap.Error(err))
		return nil, fmt.Errorf("metadata %s: %w", fileID, apperr.ErrNotFound)
	}
	return meta, nil
}

func (r *MetadataBlobJSON) List(ctx context.Context, tenantID string) ([]model.FileMetadata, error) {
	keys, err := r.store.List(ctx, storage.MetadataPrefix(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	out := make([]model.FileMetadata, 0, len(keys))
	for _, key := range keys {
		meta, err := r.read(ctx, key)
		if err != nil {
			// One bad record never aborts the whole listing.
			r.log.Warn("skipping unreadable metadata record",
				zap.String("tenant_id", tenantID),
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

func (r *MetadataBlobJSON) Delete(ctx context.Context, tenantID, fileID string) error {
	return r.store.Delete(ctx, storage.MetadataKey(tenantID, fileID))
}

func (r *MetadataBlobJSON) read(ctx context.Context, key string) (*model.FileMetadata, error) {
	rc, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta model.FileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}
