package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/quota"
	repoMocks "filedepot/internal/repository/mocks"
	"filedepot/internal/storage"
	storeMocks "filedepot/internal/storage/mocks"
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

// newMockEnv wires a storage service with mocked blob store and metadata
// repository over a real directory: parent (limit 100) with children child-a
// and child-b (each limit 100).
func newMockEnv(t *testing.T) (*storeMocks.MockStorage, *repoMocks.MockMetadataRepository, *usage.Ledger, StorageService) {
	t.Helper()
	cfg := &model.TenantConfigFile{
		Tenants: map[string]*model.TenantConfigEntry{
			"parent": {
				APIKey:            "key-parent",
				StorageLimitBytes: 100,
				SubTenants: map[string]*model.TenantConfigEntry{
					"child-a": {APIKey: "key-a", StorageLimitBytes: 100},
					"child-b": {APIKey: "key-b", StorageLimitBytes: 100},
				},
			},
		},
	}
	dir, err := tenant.New(cfg, "", 10, nil)
	require.NoError(t, err)
	ledger := usage.NewLedger()
	acct := quota.NewAccountant(dir, ledger)

	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockMetadataRepository)
	svc := NewStorageService(mStore, mRepo, dir, acct, ledger, 1<<20, nil)
	return mStore, mRepo, ledger, svc
}

func TestSaveChunk(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		caller     string
		target     string
		setupMocks func(mStore *storeMocks.MockStorage)
		wantErr    error
		wantSize   int64
	}{
		{
			name:   "happy path",
			caller: "child-a",
			target: "child-a",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "child-a/bin/") && strings.HasSuffix(key, ".bin")
				}), mock.Anything).Return(func(ctx context.Context, key string, r io.Reader) storage.PutResult {
					return storage.PutResult{Key: key, Size: 11}
				}, nil)
			},
			wantSize: 11,
		},
		{
			name:       "unknown target tenant",
			caller:     "child-a",
			target:     "ghost",
			setupMocks: func(mStore *storeMocks.MockStorage) {},
			wantErr:    apperr.ErrNotFound,
		},
		{
			name:       "sibling access denied",
			caller:     "child-a",
			target:     "child-b",
			setupMocks: func(mStore *storeMocks.MockStorage) {},
			wantErr:    apperr.ErrAccessDenied,
		},
		{
			name:   "storage error",
			caller: "child-a",
			target: "child-a",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything).
					Return(storage.PutResult{}, errors.New("disk full"))
			},
			wantErr: errors.New("disk full"),
		},
		{
			name:   "quota exceeded triggers rollback",
			caller: "child-a",
			target: "child-a",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader) storage.PutResult {
						return storage.PutResult{Key: key, Size: 200}
					}, nil)
				mStore.On("Delete", ctx, mock.Anything).Return(nil)
			},
			wantErr: apperr.ErrQuotaExceeded,
		},
		{
			name:   "quota exceeded even when rollback fails",
			caller: "child-a",
			target: "child-a",
			setupMocks: func(mStore *storeMocks.MockStorage) {
				mStore.On("Put", ctx, mock.Anything, mock.Anything).
					Return(func(ctx context.Context, key string, r io.Reader) storage.PutResult {
						return storage.PutResult{Key: key, Size: 200}
					}, nil)
				mStore.On("Delete", ctx, mock.Anything).Return(errors.New("delete fail"))
			},
			wantErr: apperr.ErrQuotaExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore, _, ledger, svc := newMockEnv(t)
			tt.setupMocks(mStore)

			chunkID, size, err := svc.SaveChunk(ctx, tt.caller, tt.target, strings.NewReader("hello world"))

			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, apperr.ErrNotFound) ||
					errors.Is(tt.wantErr, apperr.ErrAccessDenied) ||
					errors.Is(tt.wantErr, apperr.ErrQuotaExceeded) {
					assert.ErrorIs(t, err, tt.wantErr)
				} else {
					assert.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr.Error())
				}
				// A failed save must never leave usage behind.
				assert.Equal(t, int64(0), ledger.Get(tt.target))
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, chunkID)
				assert.Equal(t, tt.wantSize, size)
				assert.Equal(t, tt.wantSize, ledger.Get(tt.target))
			}
			mStore.AssertExpectations(t)
		})
	}
}

func TestSaveChunkNilReader(t *testing.T) {
	_, _, _, svc := newMockEnv(t)

	_, _, err := svc.SaveChunk(context.Background(), "child-a", "child-a", nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCommitFile(t *testing.T) {
	ctx := context.Background()

	t.Run("fills id and created at", func(t *testing.T) {
		_, mRepo, _, svc := newMockEnv(t)
		mRepo.On("Save", ctx, "child-a", mock.MatchedBy(func(meta *model.FileMetadata) bool {
			return meta.ID != "" && !meta.CreatedAt.IsZero() && meta.ChunkIDs != nil
		})).Return(nil)

		meta, err := svc.CommitFile(ctx, "child-a", "child-a", &model.FileMetadata{
			OriginalFilename: "test.txt",
			FileSize:         0,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, meta.ID)
		assert.NotNil(t, meta.ChunkIDs)
		mRepo.AssertExpectations(t)
	})

	t.Run("negative size rejected", func(t *testing.T) {
		_, _, _, svc := newMockEnv(t)
		_, err := svc.CommitFile(ctx, "child-a", "child-a", &model.FileMetadata{FileSize: -1})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("nil metadata rejected", func(t *testing.T) {
		_, _, _, svc := newMockEnv(t)
		_, err := svc.CommitFile(ctx, "child-a", "child-a", nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})

	t.Run("access denied before repository touch", func(t *testing.T) {
		_, mRepo, _, svc := newMockEnv(t)
		_, err := svc.CommitFile(ctx, "child-a", "child-b", &model.FileMetadata{})
		assert.ErrorIs(t, err, apperr.ErrAccessDenied)
		mRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()

	t.Run("sums chunk sizes and decrements once", func(t *testing.T) {
		mStore, mRepo, ledger, svc := newMockEnv(t)
		ledger.Add("child-a", 30)

		mRepo.On("FindByID", ctx, "child-a", "file-1").Return(&model.FileMetadata{
			ID:       "file-1",
			ChunkIDs: []string{"c1", "c2", "missing"},
		}, nil)
		mStore.On("Size", ctx, storage.ChunkKey("child-a", "c1")).Return(int64(10), nil)
		mStore.On("Size", ctx, storage.ChunkKey("child-a", "c2")).Return(int64(20), nil)
		mStore.On("Size", ctx, storage.ChunkKey("child-a", "missing")).Return(int64(0), apperr.ErrNotFound)
		mStore.On("Delete", ctx, storage.ChunkKey("child-a", "c1")).Return(nil)
		mStore.On("Delete", ctx, storage.ChunkKey("child-a", "c2")).Return(nil)
		mRepo.On("Delete", ctx, "child-a", "file-1").Return(nil)

		ok, err := svc.DeleteFile(ctx, "child-a", "child-a", "file-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(0), ledger.Get("child-a"))
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("absent file is an idempotent no-op", func(t *testing.T) {
		_, mRepo, ledger, svc := newMockEnv(t)
		ledger.Add("child-a", 10)
		mRepo.On("FindByID", ctx, "child-a", "gone").Return(nil, apperr.ErrNotFound)

		ok, err := svc.DeleteFile(ctx, "child-a", "child-a", "gone")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(10), ledger.Get("child-a"))
	})
}

func TestDeleteAllFiles(t *testing.T) {
	ctx := context.Background()
	mStore, mRepo, _, svc := newMockEnv(t)

	mRepo.On("List", ctx, "child-a").Return([]model.FileMetadata{
		{ID: "f1", ChunkIDs: []string{}},
		{ID: "f2", ChunkIDs: []string{}},
	}, nil)
	mRepo.On("FindByID", ctx, "child-a", "f1").Return(&model.FileMetadata{ID: "f1", ChunkIDs: []string{}}, nil)
	mRepo.On("FindByID", ctx, "child-a", "f2").Return(&model.FileMetadata{ID: "f2", ChunkIDs: []string{}}, nil)
	mRepo.On("Delete", ctx, "child-a", "f1").Return(nil)
	mRepo.On("Delete", ctx, "child-a", "f2").Return(nil)

	n, err := svc.DeleteAllFiles(ctx, "child-a", "child-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	mStore.AssertExpectations(t)
	mRepo.AssertExpectations(t)
}

func TestAccessIsolationAcrossOperations(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newMockEnv(t)

	// Sibling child-a must be rejected on every operation against child-b.
	_, err := svc.GetChunk(ctx, "child-a", "child-b", "c1")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = svc.GetFile(ctx, "child-a", "child-b", "f1")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = svc.ListFiles(ctx, "child-a", "child-b")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = svc.DeleteFile(ctx, "child-a", "child-b", "f1")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = svc.DeleteAllFiles(ctx, "child-a", "child-b")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	// A child can never act on its parent either.
	_, err = svc.ListFiles(ctx, "child-a", "parent")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	// Unknown tenants are reported as not found, not as denied.
	_, err = svc.ListFiles(ctx, "child-a", "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
