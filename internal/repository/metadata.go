package repository

import (
	"context"

	"filedepot/internal/model"
)

// MetadataRepository defines tenant-scoped persistence for file metadata
// records. No business logic here — strictly storage operations. Quota and
// access control are enforced by the service layer before these are called.
type MetadataRepository interface {
	// Save writes or overwrites the record for (tenantID, meta.ID).
	Save(ctx context.Context, tenantID string, meta *model.FileMetadata) error

	// FindByID returns one record. A missing record returns apperr.ErrNotFound;
	// so does a record that exists but cannot be parsed, since the caller can
	// do nothing useful with a corrupt record it asked for by id.
	FindByID(ctx context.Context, tenantID, fileID string) (*model.FileMetadata, error)

	// List returns every readable record for the tenant. Corrupt or unreadable
	// individual records are skipped and logged, never aborting the listing.
	List(ctx context.Context, tenantID string) ([]model.FileMetadata, error)

	// Delete removes a record. It returns nil if the record was deleted or did
	// not exist.
	Delete(ctx context.Context, tenantID, fileID string) error
}
