package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
	"filedepot/internal/quota"
	"filedepot/internal/repository/blobjson"
	"filedepot/internal/storage"
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

type fsEnv struct {
	dir     *tenant.Directory
	ledger  *usage.Ledger
	store   storage.Storage
	storage StorageService
	tenants TenantService
}

// newFsEnv builds the full service stack on a real filesystem store:
// root (limit 100) with children alpha (limit 100) and beta (unlimited).
func newFsEnv(t *testing.T) *fsEnv {
	t.Helper()
	cfg := &model.TenantConfigFile{
		RequireAuthentication: true,
		Tenants: map[string]*model.TenantConfigEntry{
			"root": {
				APIKey:            "key-root",
				StorageLimitBytes: 100,
				IsAdmin:           true,
				SubTenants: map[string]*model.TenantConfigEntry{
					"alpha": {APIKey: "key-alpha", StorageLimitBytes: 100},
					"beta":  {APIKey: "key-beta", StorageLimitBytes: 0},
				},
			},
		},
	}
	dir, err := tenant.New(cfg, "", 10, nil)
	require.NoError(t, err)

	store, err := storage.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	repo := blobjson.NewMetadataBlobJSON(store, nil)
	ledger := usage.NewLedger()
	acct := quota.NewAccountant(dir, ledger)

	storageSvc := NewStorageService(store, repo, dir, acct, ledger, 1<<20, nil)
	tenantSvc := NewTenantService(dir, acct, ledger, storageSvc, nil)
	return &fsEnv{dir: dir, ledger: ledger, store: store, storage: storageSvc, tenants: tenantSvc}
}

func TestUploadDownloadDeleteFlow(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	// Two chunks forming one file.
	c1, n1, err := env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader("hello "))
	require.NoError(t, err)
	c2, n2, err := env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader("world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n1+n2)
	assert.Equal(t, int64(11), env.ledger.Get("alpha"))

	meta, err := env.storage.CommitFile(ctx, "alpha", "alpha", &model.FileMetadata{
		OriginalFilename: "greeting.txt",
		ContentType:      "text/plain",
		FileSize:         n1 + n2,
		ChunkIDs:         []string{c1, c2},
	})
	require.NoError(t, err)
	require.NotEmpty(t, meta.ID)

	got, err := env.storage.GetFile(ctx, "alpha", "alpha", meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "greeting.txt", got.OriginalFilename)
	assert.Equal(t, []string{c1, c2}, got.ChunkIDs)

	// Reassemble by reading chunks in order.
	var buf bytes.Buffer
	for _, id := range got.ChunkIDs {
		rc, err := env.storage.GetChunk(ctx, "alpha", "alpha", id)
		require.NoError(t, err)
		_, err = io.Copy(&buf, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
	assert.Equal(t, "hello world", buf.String())

	list, err := env.storage.ListFiles(ctx, "alpha", "alpha")
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Deletion frees the full usage exactly once.
	ok, err := env.storage.DeleteFile(ctx, "alpha", "alpha", meta.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), env.ledger.Get("alpha"))

	ok, err = env.storage.DeleteFile(ctx, "alpha", "alpha", meta.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), env.ledger.Get("alpha"))

	keys, err := env.store.List(ctx, storage.ChunkPrefix("alpha"))
	require.NoError(t, err)
	assert.Empty(t, keys, "no chunks may remain after deletion")
	keys, err = env.store.List(ctx, storage.MetadataPrefix("alpha"))
	require.NoError(t, err)
	assert.Empty(t, keys, "no metadata records may remain after deletion")
}

func TestQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	// 11 bytes fit under the 100-byte limit.
	first, _, err := env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader("hello world"))
	require.NoError(t, err)

	// 200 more do not; the chunk must be rolled back entirely.
	_, _, err = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(strings.Repeat("x", 200)))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.Equal(t, int64(11), env.ledger.Get("alpha"))

	keys, err := env.store.List(ctx, storage.ChunkPrefix("alpha"))
	require.NoError(t, err)
	assert.Len(t, keys, 1, "refused chunk must not survive on disk")

	// The earlier chunk is untouched.
	rc, err := env.storage.GetChunk(ctx, "alpha", "alpha", first)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello world", string(data))

	// Filling up to the boundary exactly is allowed.
	_, _, err = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(strings.Repeat("y", 89)))
	require.NoError(t, err)
	assert.Equal(t, int64(100), env.ledger.Get("alpha"))

	// A single further byte is not.
	_, _, err = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader("z"))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)
}

func TestZeroLengthChunk(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	id, n, err := env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(0), env.ledger.Get("alpha"))

	rc, err := env.storage.GetChunk(ctx, "alpha", "alpha", id)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Empty(t, data)
}

func TestAncestorQuotaCeiling(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	// beta has no own limit but sits under root's 100-byte ceiling.
	_, _, err := env.storage.SaveChunk(ctx, "beta", "beta", strings.NewReader(strings.Repeat("a", 90)))
	require.NoError(t, err)

	// Another 20 bytes in beta would push root's subtree to 110.
	_, _, err = env.storage.SaveChunk(ctx, "beta", "beta", strings.NewReader(strings.Repeat("b", 20)))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	// The ceiling is shared: root itself has no headroom left either.
	_, _, err = env.storage.SaveChunk(ctx, "root", "root", strings.NewReader(strings.Repeat("c", 20)))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	// Sibling alpha is constrained the same way.
	_, _, err = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(strings.Repeat("d", 20)))
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	// Freeing beta's usage restores headroom everywhere.
	n, err := env.storage.PurgeTenant(ctx, "beta")
	require.NoError(t, err)
	assert.Zero(t, n) // nothing committed, so no files to delete
	env.ledger.Remove("beta")

	_, _, err = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(strings.Repeat("e", 20)))
	require.NoError(t, err)
}

func TestConcurrentUploadsStayConsistent(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := strings.Repeat(fmt.Sprintf("%d", i), 10)
			_, _, errs[i] = env.storage.SaveChunk(ctx, "alpha", "alpha", strings.NewReader(payload))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int64(workers*10), env.ledger.Get("alpha"))

	keys, err := env.store.List(ctx, storage.ChunkPrefix("alpha"))
	require.NoError(t, err)
	assert.Len(t, keys, workers)
}

func TestTenantLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	created, err := env.tenants.CreateSubTenant(ctx, "root", "alpha", "Alpha Archive")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.APIKey)
	// The child inherits alpha's configured limit.
	assert.Equal(t, int64(100), created.StorageLimitBytes)

	// Store a file in the new tenant, as alpha (its ancestor).
	chunkID, n, err := env.storage.SaveChunk(ctx, "alpha", created.ID, strings.NewReader("payload"))
	require.NoError(t, err)
	_, err = env.storage.CommitFile(ctx, "alpha", created.ID, &model.FileMetadata{
		OriginalFilename: "p.bin",
		FileSize:         n,
		ChunkIDs:         []string{chunkID},
	})
	require.NoError(t, err)

	require.NoError(t, env.tenants.UpdateStorageLimit(ctx, "root", created.ID, 50))
	got, err := env.dir.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.StorageLimitBytes)

	report, err := env.tenants.Usage(ctx, "alpha", created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.UsedBytes)
	assert.Equal(t, int64(7), report.SubtreeBytes)
	assert.Equal(t, int64(50), report.StorageLimitBytes)

	// Deleting the tenant removes its blobs and its usage counter.
	require.NoError(t, env.tenants.Delete(ctx, "root", created.ID))

	_, err = env.dir.Get(created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, int64(0), env.ledger.Get(created.ID))

	keys, err := env.store.List(ctx, storage.ChunkPrefix(created.ID))
	require.NoError(t, err)
	assert.Empty(t, keys)
	keys, err = env.store.List(ctx, storage.MetadataPrefix(created.ID))
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Storage against the deleted tenant now reads as not found.
	_, _, err = env.storage.SaveChunk(ctx, "alpha", created.ID, strings.NewReader("x"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteTenantPurgesWholeSubtree(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	mid, err := env.tenants.CreateSubTenant(ctx, "root", "beta", "Mid")
	require.NoError(t, err)
	leaf, err := env.tenants.CreateSubTenant(ctx, "root", mid.ID, "Leaf")
	require.NoError(t, err)

	for _, id := range []string{"beta", mid.ID, leaf.ID} {
		chunkID, n, err := env.storage.SaveChunk(ctx, "root", id, strings.NewReader("1234567890"))
		require.NoError(t, err)
		_, err = env.storage.CommitFile(ctx, "root", id, &model.FileMetadata{
			OriginalFilename: "f.bin",
			FileSize:         n,
			ChunkIDs:         []string{chunkID},
		})
		require.NoError(t, err)
	}

	require.NoError(t, env.tenants.Delete(ctx, "root", "beta"))

	for _, id := range []string{"beta", mid.ID, leaf.ID} {
		_, err := env.dir.Get(id)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Equal(t, int64(0), env.ledger.Get(id))
		keys, err := env.store.List(ctx, storage.ChunkPrefix(id))
		require.NoError(t, err)
		assert.Empty(t, keys)
	}

	// Siblings are untouched.
	assert.Equal(t, int64(0), env.ledger.Get("alpha"))
	_, err = env.dir.Get("alpha")
	require.NoError(t, err)
}

func TestSiblingDataInvisible(t *testing.T) {
	ctx := context.Background()
	env := newFsEnv(t)

	chunkID, n, err := env.storage.SaveChunk(ctx, "beta", "beta", strings.NewReader("secret"))
	require.NoError(t, err)
	meta, err := env.storage.CommitFile(ctx, "beta", "beta", &model.FileMetadata{
		OriginalFilename: "s.bin",
		FileSize:         n,
		ChunkIDs:         []string{chunkID},
	})
	require.NoError(t, err)

	// alpha cannot see beta's data under any operation, and gets a uniform
	// denial regardless of whether the file or chunk exists.
	_, err = env.storage.GetChunk(ctx, "alpha", "beta", chunkID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = env.storage.GetFile(ctx, "alpha", "beta", meta.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	// The parent can.
	rc, err := env.storage.GetChunk(ctx, "root", "beta", chunkID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "secret", string(data))
}
