package tenant

import (
	"fmt"
	"sort"

	"filedepot/internal/model"
)

// Snapshot is an immutable view of the tenant tree. The directory swaps whole
// snapshots on every mutation and reload, so a reader holding a Snapshot never
// observes a partially-updated tree. Hierarchy is stored as flat id-indexed
// maps (node arena plus parent references inside the nodes) rather than live
// pointers, which keeps the swap a single pointer assignment.
type Snapshot struct {
	requireAuth bool
	nodes       map[string]*model.Tenant
	roots       []string
}

// RequireAuthentication reports the file-level authentication flag.
func (s *Snapshot) RequireAuthentication() bool { return s.requireAuth }

// Roots returns the ids of the root tenants, sorted.
func (s *Snapshot) Roots() []string { return s.roots }

// Get returns the tenant with the given id anywhere in the tree. The returned
// value is a copy; mutating it has no effect on the snapshot.
func (s *Snapshot) Get(id string) (*model.Tenant, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	cp := *n
	cp.ChildIDs = append([]string(nil), n.ChildIDs...)
	return &cp, true
}

// Resolve finds the tenant whose API key matches exactly (case-sensitive),
// visiting root tenants first and then their descendants depth-first.
func (s *Snapshot) Resolve(apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}
	for _, root := range s.roots {
		if id, ok := s.resolveFrom(root, apiKey); ok {
			return id, true
		}
	}
	return "", false
}

func (s *Snapshot) resolveFrom(id, apiKey string) (string, bool) {
	n := s.nodes[id]
	if n.APIKey == apiKey {
		return id, true
	}
	for _, child := range n.ChildIDs {
		if found, ok := s.resolveFrom(child, apiKey); ok {
			return found, true
		}
	}
	return "", false
}

// HasAccess reports whether caller may act on target: a tenant has access to
// itself and to every descendant. Ancestors and siblings are never implicitly
// accessible.
func (s *Snapshot) HasAccess(callerID, targetID string) bool {
	if callerID == "" || targetID == "" {
		return false
	}
	if callerID == targetID {
		_, ok := s.nodes[callerID]
		return ok
	}
	// Walk target's ancestor chain looking for the caller.
	cur, ok := s.nodes[targetID]
	if !ok {
		return false
	}
	for cur.ParentID != "" {
		if cur.ParentID == callerID {
			return true
		}
		cur = s.nodes[cur.ParentID]
	}
	return false
}

// Depth returns the 1-based depth of the tenant (roots are depth 1).
func (s *Snapshot) Depth(id string) (int, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return 0, false
	}
	depth := 1
	for n.ParentID != "" {
		depth++
		n = s.nodes[n.ParentID]
	}
	return depth, true
}

// Subtree returns the ids of the tenant and all of its descendants.
func (s *Snapshot) Subtree(id string) []string {
	n, ok := s.nodes[id]
	if !ok {
		return nil
	}
	out := []string{id}
	for _, child := range n.ChildIDs {
		out = append(out, s.Subtree(child)...)
	}
	return out
}

// buildSnapshot converts the persisted nested form into a flat snapshot,
// validating structural invariants: non-empty ids and API keys, globally
// unique ids and API keys, and depth within maxDepth.
func buildSnapshot(cfg *model.TenantConfigFile, maxDepth int) (*Snapshot, error) {
	s := &Snapshot{
		requireAuth: cfg.RequireAuthentication,
		nodes:       make(map[string]*model.Tenant),
	}
	seenKeys := make(map[string]string)

	var add func(id string, e *model.TenantConfigEntry, parentID string, depth int) error
	add = func(id string, e *model.TenantConfigEntry, parentID string, depth int) error {
		if id == "" {
			return fmt.Errorf("tenant with empty id under parent %q", parentID)
		}
		if e == nil {
			return fmt.Errorf("tenant %q: empty entry", id)
		}
		if e.APIKey == "" {
			return fmt.Errorf("tenant %q: empty api key", id)
		}
		if _, dup := s.nodes[id]; dup {
			return fmt.Errorf("duplicate tenant id %q", id)
		}
		if other, dup := seenKeys[e.APIKey]; dup {
			return fmt.Errorf("tenant %q: api key already used by tenant %q", id, other)
		}
		if e.StorageLimitBytes < 0 {
			return fmt.Errorf("tenant %q: negative storage limit", id)
		}
		if depth > maxDepth {
			return fmt.Errorf("tenant %q: depth %d exceeds maximum %d", id, depth, maxDepth)
		}
		seenKeys[e.APIKey] = id

		node := &model.Tenant{
			ID:                id,
			APIKey:            e.APIKey,
			DisplayName:       e.DisplayName,
			StorageLimitBytes: e.StorageLimitBytes,
			IsAdmin:           e.IsAdmin,
			ParentID:          parentID,
		}
		s.nodes[id] = node

		for _, childID := range sortedKeys(e.SubTenants) {
			node.ChildIDs = append(node.ChildIDs, childID)
			if err := add(childID, e.SubTenants[childID], id, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rootID := range sortedKeys(cfg.Tenants) {
		s.roots = append(s.roots, rootID)
		if err := add(rootID, cfg.Tenants[rootID], "", 1); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func sortedKeys(m map[string]*model.TenantConfigEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
