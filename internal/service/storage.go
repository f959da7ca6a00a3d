package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/quota"
	"filedepot/internal/repository"
	"filedepot/internal/storage"
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

// StorageService defines the tenant-scoped, quota-safe chunk and metadata
// operations. Every operation takes the caller's tenant id (resolved by the
// authentication layer) and the target tenant id, and enforces the hierarchy
// access rule: a target id that resolves to no tenant anywhere returns
// apperr.ErrNotFound; one that resolves but is not the caller or one of its
// descendants returns apperr.ErrAccessDenied.
type StorageService interface {
	// ChunkSize reports the chunk size clients should split uploads into.
	ChunkSize() int64

	// SaveChunk streams r into a new chunk owned by tenantID and returns the
	// chunk id and written size. The quota check runs after the physical write
	// (stream length is unknown upfront); an over-quota chunk is deleted again
	// before apperr.ErrQuotaExceeded is returned, so recorded usage never
	// exceeds the effective quota after a successful return.
	SaveChunk(ctx context.Context, callerID, tenantID string, r io.Reader) (string, int64, error)

	// GetChunk opens a chunk for reading.
	GetChunk(ctx context.Context, callerID, tenantID, chunkID string) (io.ReadCloser, error)

	// CommitFile persists the file metadata record, making the file visible.
	// This is the single commit point of an upload; it does not consume quota
	// (chunks are already accounted) and does not verify that the referenced
	// chunks exist. A missing id or CreatedAt is filled in.
	CommitFile(ctx context.Context, callerID, tenantID string, meta *model.FileMetadata) (*model.FileMetadata, error)

	// GetFile returns one metadata record.
	GetFile(ctx context.Context, callerID, tenantID, fileID string) (*model.FileMetadata, error)

	// ListFiles returns the tenant's metadata records. Corrupt records are
	// skipped, never fatal.
	ListFiles(ctx context.Context, callerID, tenantID string) ([]model.FileMetadata, error)

	// DeleteFile removes a file: every referenced chunk (best-effort), one
	// usage decrement for the summed chunk sizes, then the metadata record.
	// Returns false without error if the file does not exist.
	DeleteFile(ctx context.Context, callerID, tenantID, fileID string) (bool, error)

	// DeleteAllFiles removes every file of the tenant and returns the number
	// deleted. One bad record never aborts the batch.
	DeleteAllFiles(ctx context.Context, callerID, tenantID string) (int, error)

	// PurgeTenant removes every file of a tenant without an access check. It
	// exists for tenant deletion, where the target has already been removed
	// from the directory and can no longer be authorized against.
	PurgeTenant(ctx context.Context, tenantID string) (int, error)
}

type storageService struct {
	store     storage.Storage
	repo      repository.MetadataRepository
	dir       *tenant.Directory
	quota     *quota.Accountant
	ledger    *usage.Ledger
	chunkSize int64
	log       *zap.Logger
}

// NewStorageService constructs the StorageService.
func NewStorageService(
	store storage.Storage,
	repo repository.MetadataRepository,
	dir *tenant.Directory,
	acct *quota.Accountant,
	ledger *usage.Ledger,
	chunkSize int64,
	log *zap.Logger,
) StorageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &storageService{
		store:     store,
		repo:      repo,
		dir:       dir,
		quota:     acct,
		ledger:    ledger,
		chunkSize: chunkSize,
		log:       log,
	}
}

func (s *storageService) ChunkSize() int64 { return s.chunkSize }

// authorize applies the access rule shared by every operation.
func (s *storageService) authorize(callerID, tenantID string) error {
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

func (s *storageService) SaveChunk(ctx context.Context, callerID, tenantID string, r io.Reader) (string, int64, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return "", 0, err
	}
	if r == nil {
		return "", 0, fmt.Errorf("chunk stream: %w", apperr.ErrInvalidArgument)
	}

	chunkID := uuid.NewString()
	key := storage.ChunkKey(tenantID, chunkID)

	res, err := s.store.Put(ctx, key, r)
	if err != nil {
		return "", 0, fmt.Errorf("store chunk: %w", err)
	}

	// The stream length was unknown before the write, so the quota decision
	// comes afterwards; a refused chunk is rolled back unconditionally.
	if !s.quota.CanStore(tenantID, res.Size) {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Error("rollback of over-quota chunk failed",
				zap.String("tenant_id", tenantID),
				zap.String("chunk_id", chunkID),
				zap.Error(delErr))
		}
		return "", 0, fmt.Errorf("chunk of %d bytes: %w", res.Size, apperr.ErrQuotaExceeded)
	}

	s.ledger.Add(tenantID, res.Size)
	return chunkID, res.Size, nil
}

func (s *storageService) GetChunk(ctx context.Context, callerID, tenantID, chunkID string) (io.ReadCloser, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return nil, err
	}
	if chunkID == "" {
		return nil, fmt.Errorf("chunk id: %w", apperr.ErrInvalidArgument)
	}
	return s.store.Get(ctx, storage.ChunkKey(tenantID, chunkID))
}

func (s *storageService) CommitFile(ctx context.Context, callerID, tenantID string, meta *model.FileMetadata) (*model.FileMetadata, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("metadata: %w", apperr.ErrInvalidArgument)
	}
	if meta.FileSize < 0 {
		return nil, fmt.Errorf("file size: %w", apperr.ErrInvalidArgument)
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.ChunkIDs == nil {
		meta.ChunkIDs = []string{}
	}
	if err := s.repo.Save(ctx, tenantID, meta); err != nil {
		return nil, fmt.Errorf("commit file: %w", err)
	}
	return meta, nil
}

func (s *storageService) GetFile(ctx context.Context, callerID, tenantID, fileID string) (*model.FileMetadata, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, fmt.Errorf("file id: %w", apperr.ErrInvalidArgument)
	}
	return s.repo.FindByID(ctx, tenantID, fileID)
}

func (s *storageService) ListFiles(ctx context.Context, callerID, tenantID string) ([]model.FileMetadata, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tenantID)
}

func (s *storageService) DeleteFile(ctx context.Context, callerID, tenantID, fileID string) (bool, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return false, err
	}
	if fileID == "" {
		return false, fmt.Errorf("file id: %w", apperr.ErrInvalidArgument)
	}
	return s.deleteFile(ctx, tenantID, fileID)
}

// deleteFile removes one file without re-running the access check; callers
// have already authorized the tenant scope.
func (s *storageService) deleteFile(ctx context.Context, tenantID, fileID string) (bool, error) {
	meta, err := s.repo.FindByID(ctx, tenantID, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Idempotent: deleting an absent file is a no-op and must not
			// mutate usage.
			return false, nil
		}
		return false, err
	}

	var freed int64
	for _, chunkID := range meta.ChunkIDs {
		key := storage.ChunkKey(tenantID, chunkID)
		size, err := s.store.Size(ctx, key)
		if err != nil {
			// A missing chunk is not an error during deletion.
			if !errors.Is(err, apperr.ErrNotFound) {
				s.log.Warn("could not stat chunk during delete",
					zap.String("tenant_id", tenantID),
					zap.String("chunk_id", chunkID),
					zap.Error(err))
			}
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("could not delete chunk",
				zap.String("tenant_id", tenantID),
				zap.String("chunk_id", chunkID),
				zap.Error(err))
			continue
		}
		freed += size
	}

	s.ledger.Sub(tenantID, freed)

	if err := s.repo.Delete(ctx, tenantID, fileID); err != nil {
		return false, fmt.Errorf("delete metadata: %w", err)
	}
	return true, nil
}

func (s *storageService) DeleteAllFiles(ctx context.Context, callerID, tenantID string) (int, error) {
	if err := s.authorize(callerID, tenantID); err != nil {
		return 0, err
	}
	return s.deleteAllFiles(ctx, tenantID)
}

func (s *storageService) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	return s.deleteAllFiles(ctx, tenantID)
}

func (s *storageService) deleteAllFiles(ctx context.Context, tenantID string) (int, error) {
	// Corrupt records are already skipped by List; they are simply not counted
	// as deleted.
	items, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, meta := range items {
		ok, err := s.deleteFile(ctx, tenantID, meta.ID)
		if err != nil {
			s.log.Warn("could not delete file during bulk delete",
				zap.String("tenant_id", tenantID),
				zap.String("file_id", meta.ID),
				zap.Error(err))
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}
