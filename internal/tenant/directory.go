package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"filedepot/internal/apperr"
	"filedepot/internal/model"
)

// Directory is the single source of truth for tenant identity, hierarchy, and
// access rules. It keeps two representations in sync: the canonical nested
// configuration tree (the persisted form) and a flat immutable Snapshot derived
// from it. Every mutation edits the configuration tree, rebuilds the snapshot,
// swaps it in under the lock, and persists the file.
type Directory struct {
	mu       sync.RWMutex
	cfg      *model.TenantConfigFile
	snap     *Snapshot
	filePath string
	maxDepth int
	log      *zap.Logger
}

// New builds a Directory from an in-memory configuration. filePath may be
// empty, in which case Save and Reload are no-ops (useful for tests).
func New(cfg *model.TenantConfigFile, filePath string, maxDepth int, log *zap.Logger) (*Directory, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Tenants == nil {
		cfg.Tenants = make(map[string]*model.TenantConfigEntry)
	}
	snap, err := buildSnapshot(cfg, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant configuration: %w", err)
	}
	return &Directory{cfg: cfg, snap: snap, filePath: filePath, maxDepth: maxDepth, log: log}, nil
}

// Load reads the tenant configuration file and builds a Directory bound to it.
func Load(filePath string, maxDepth int, log *zap.Logger) (*Directory, error) {
	cfg, err := readConfigFile(filePath)
	if err != nil {
		return nil, err
	}
	return New(cfg, filePath, maxDepth, log)
}

func readConfigFile(filePath string) (*model.TenantConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read tenant file: %w", err)
	}
	var cfg model.TenantConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tenant file: %w", err)
	}
	if cfg.Tenants == nil {
		cfg.Tenants = make(map[string]*model.TenantConfigEntry)
	}
	return &cfg, nil
}

// Snapshot returns the current immutable tree view. Callers that need several
// consistent reads (quota walks, access checks plus lookups) should take one
// snapshot and use it throughout.
func (d *Directory) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// RequireAuthentication reports whether requests must carry a valid API key.
func (d *Directory) RequireAuthentication() bool {
	return d.Snapshot().RequireAuthentication()
}

// Resolve maps an API key to a tenant id. Exact, case-sensitive match; root
// tenants are searched before descendants.
func (d *Directory) Resolve(apiKey string) (string, error) {
	id, ok := d.Snapshot().Resolve(apiKey)
	if !ok {
		return "", apperr.ErrNotFound
	}
	return id, nil
}

// Get returns a tenant by id from anywhere in the tree.
func (d *Directory) Get(id string) (*model.Tenant, error) {
	t, ok := d.Snapshot().Get(id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return t, nil
}

// HasAccess reports whether caller may act on target (self or descendant).
func (d *Directory) HasAccess(callerID, targetID string) bool {
	return d.Snapshot().HasAccess(callerID, targetID)
}

// CreateSubTenant adds a child under parentID with a fresh globally-unique id
// and API key. The child's storage limit starts equal to the parent's
// configured limit (not the parent's remaining space), so the pair shares the
// same ceiling by default.
func (d *Directory) CreateSubTenant(parentID, displayName string) (*model.Tenant, error) {
	if parentID == "" {
		return nil, fmt.Errorf("parent id: %w", apperr.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	parent, _, ok := findEntry(d.cfg.Tenants, parentID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	depth, _ := d.snap.Depth(parentID)
	if depth+1 > d.maxDepth {
		return nil, apperr.ErrDepthExceeded
	}

	id := uuid.NewString()
	entry := &model.TenantConfigEntry{
		APIKey:            uuid.NewString(),
		DisplayName:       displayName,
		StorageLimitBytes: parent.StorageLimitBytes,
	}
	if parent.SubTenants == nil {
		parent.SubTenants = make(map[string]*model.TenantConfigEntry)
	}
	parent.SubTenants[id] = entry

	if err := d.commitLocked(); err != nil {
		delete(parent.SubTenants, id)
		return nil, err
	}
	t, _ := d.snap.Get(id)
	return t, nil
}

// UpdateStorageLimit changes a tenant's configured limit. Zero means
// unlimited; negative limits are rejected.
func (d *Directory) UpdateStorageLimit(id string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("storage limit: %w", apperr.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, _, ok := findEntry(d.cfg.Tenants, id)
	if !ok {
		return apperr.ErrNotFound
	}
	prev := entry.StorageLimitBytes
	entry.StorageLimitBytes = limit

	if err := d.commitLocked(); err != nil {
		entry.StorageLimitBytes = prev
		return err
	}
	return nil
}

// DeleteTenant removes the tenant and its entire subtree. It returns the ids
// of every removed tenant (the target first) so callers can release per-tenant
// resources such as stored files and usage counters.
func (d *Directory) DeleteTenant(id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, owner, ok := findEntry(d.cfg.Tenants, id)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	removed := d.snap.Subtree(id)
	saved := owner[id]
	delete(owner, id)

	if err := d.commitLocked(); err != nil {
		owner[id] = saved
		return nil, err
	}
	return removed, nil
}

// Reload re-reads the persisted file and atomically swaps the in-memory tree.
// An unreadable or malformed file leaves the previous tree intact.
func (d *Directory) Reload() error {
	if d.filePath == "" {
		return nil
	}
	cfg, err := readConfigFile(d.filePath)
	if err != nil {
		return err
	}
	snap, err := buildSnapshot(cfg, d.maxDepth)
	if err != nil {
		return fmt.Errorf("invalid tenant configuration: %w", err)
	}

	d.mu.Lock()
	d.cfg = cfg
	d.snap = snap
	d.mu.Unlock()

	d.log.Info("tenant configuration reloaded", zap.Int("tenants", len(snap.nodes)))
	return nil
}

// Save persists the current tree. The file is written to a temporary sibling
// and renamed into place so a crash never leaves a truncated file behind.
func (d *Directory) Save() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.saveLocked()
}

// commitLocked rebuilds the snapshot from the mutated configuration tree and
// persists it. Called with the write lock held. The snapshot is swapped only
// after the file is written: on any error the caller restores the
// configuration tree and readers keep observing the previous snapshot, so a
// failed mutation has no visible effect.
func (d *Directory) commitLocked() error {
	snap, err := buildSnapshot(d.cfg, d.maxDepth)
	if err != nil {
		return fmt.Errorf("invalid tenant configuration: %w", err)
	}
	if err := d.saveLocked(); err != nil {
		d.log.Error("persist tenant configuration", zap.Error(err))
		return err
	}
	d.snap = snap
	return nil
}

func (d *Directory) saveLocked() error {
	if d.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(d.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tenant file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.filePath), ".tenants-*.json")
	if err != nil {
		return fmt.Errorf("create temp tenant file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write tenant file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close tenant file: %w", err)
	}
	if err := os.Rename(tmpName, d.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish tenant file: %w", err)
	}
	return nil
}

// findEntry locates an entry anywhere in the nested tree and returns it along
// with the map that owns it (needed for deletion).
func findEntry(m map[string]*model.TenantConfigEntry, id string) (*model.TenantConfigEntry, map[string]*model.TenantConfigEntry, bool) {
	for _, key := range sortedKeys(m) {
		if key == id {
			return m[key], m, true
		}
		if e, owner, ok := findEntry(m[key].SubTenants, id); ok {
			return e, owner, true
		}
	}
	return nil, nil, false
}
