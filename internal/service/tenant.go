package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/quota"
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

// UsageReport is the service-level DTO for a tenant's storage accounting.
type UsageReport struct {
	TenantID          string `json:"tenant_id"`
	UsedBytes         int64  `json:"used_bytes"`
	SubtreeBytes      int64  `json:"subtree_bytes"`
	StorageLimitBytes int64  `json:"storage_limit_bytes"`
}

// TenantService defines the administrative tenant operations, guarded by the
// same hierarchy access rule as the storage operations.
type TenantService interface {
	// CreateSubTenant creates a child under parentID with a fresh id and API
	// key, inheriting the parent's configured storage limit.
	CreateSubTenant(ctx context.Context, callerID, parentID, displayName string) (*model.Tenant, error)

	// UpdateStorageLimit changes a tenant's limit (0 = unlimited, negative
	// rejected).
	UpdateStorageLimit(ctx context.Context, callerID, tenantID string, limit int64) error

	// Delete removes the tenant and its whole subtree, purging the stored
	// files and usage counters of every removed tenant.
	Delete(ctx context.Context, callerID, tenantID string) error

	// Usage reports the tenant's own and subtree usage alongside its limit.
	Usage(ctx context.Context, callerID, tenantID string) (*UsageReport, error)
}

type tenantService struct {
	dir     *tenant.Directory
	quota   *quota.Accountant
	ledger  *usage.Ledger
	storage StorageService
	log     *zap.Logger
}

// NewTenantService constructs the TenantService. The storage service is used
// to purge files when a tenant subtree is deleted.
func NewTenantService(dir *tenant.Directory, acct *quota.Accountant, ledger *usage.Ledger, storage StorageService, log *zap.Logger) TenantService {
	if log == nil {
		log = zap.NewNop()
	}
	return &tenantService{dir: dir, quota: acct, ledger: ledger, storage: storage, log: log}
}

func (s *tenantService) authorize(callerID, tenantID string) error {
	if callerID == "" || tenantID == "" {
		return fmt.Errorf("tenant id: %w", apperr.ErrInvalidArgument)
	}
	snap := s.dir.Snapshot()
	if _, ok := snap.Get(tenantID); !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, apperr.ErrNotFound)
	}
	if !snap.HasAccess(callerID, tenantID) {
		return fmt.Errorf("tenant %s: %w", tenantID, apperr.ErrAccessDenied)
	}
	return nil
}

func (s *tenantService) CreateSubTenant(ctx context.Context, callerID, parentID, displayName string) (*model.Tenant, error) {
	if err := s.authorize(callerID, parentID); err != nil {
		return nil, err
	}
	return s.dir.CreateSubTenant(parentID, displayName)
}

func (s *tenantService) UpdateStorageLimit(ctx context.Context, callerID, tenantID string, limit int64) error {
	if err := s.authorize(callerID, tenantID); err != nil {
		return err
	}
	return s.dir.UpdateStorageLimit(tenantID, limit)
}

func (s *tenantService) Delete(ctx context.Context, callerID, tenantID string) error {
	if err := s.authorize(callerID, tenantID); err != nil {
		return err
	}
	removed, err := s.dir.DeleteTenant(tenantID)
	if err != nil {
		return err
	}
	// Purge stored files and counters of the whole removed subtree. This runs
	// after the directory mutation and is best-effort per node; a crash here
	// orphans blobs, the same tradeoff already accepted for interrupted
	// uploads.
	for _, id := range removed {
		if _, err := s.storage.PurgeTenant(ctx, id); err != nil {
			s.log.Warn("could not purge files of deleted tenant",
				zap.String("tenant_id", id),
				zap.Error(err))
		}
		s.ledger.Remove(id)
	}
	return nil
}

func (s *tenantService) Usage(ctx context.Context, callerID, tenantID string) (*UsageReport, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return nil, err
	}
	t, err := s.dir.Get(tenantID)
	if err != nil {
		return nil, err
	}
	return &UsageReport{
		TenantID:          tenantID,
		UsedBytes:         s.ledger.Get(tenantID),
		SubtreeBytes:      s.quota.SubtreeUsage(tenantID),
		StorageLimitBytes: t.StorageLimitBytes,
	}, nil
}
