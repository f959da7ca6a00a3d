package quota

import (
	"filedepot/internal/tenant"
	"filedepot/internal/usage"
)

// Accountant decides whether a tenant may absorb additional bytes, honoring
// quotas shared across the tenant's ancestor chain. It is a pure decision
// component: it reads the usage ledger and a directory snapshot and never
// mutates either. Trees are small and shallow, so subtree usage is recomputed
// on every check rather than cached.
type Accountant struct {
	dir    *tenant.Directory
	ledger *usage.Ledger
}

// NewAccountant constructs an Accountant over the given directory and ledger.
func NewAccountant(dir *tenant.Directory, ledger *usage.Ledger) *Accountant {
	return &Accountant{dir: dir, ledger: ledger}
}

// CanStore reports whether tenantID may store n more bytes. Every node on the
// chain from the tenant up to its root is checked: a node with a zero limit
// imposes no ceiling of its own but does not exempt ancestors further up, so a
// sub-tenant with a generous limit can still be blocked by a stricter parent.
// An unknown tenant can store nothing.
func (a *Accountant) CanStore(tenantID string, n int64) bool {
	if n < 0 {
		return false
	}
	snap := a.dir.Snapshot()
	node, ok := snap.Get(tenantID)
	if !ok {
		return false
	}
	for {
		if node.StorageLimitBytes != 0 {
			if a.subtreeUsage(snap, node.ID)+n > node.StorageLimitBytes {
				return false
			}
		}
		if node.ParentID == "" {
			return true
		}
		node, ok = snap.Get(node.ParentID)
		if !ok {
			// The tree was swapped mid-walk and the ancestor vanished; the
			// limits seen so far all passed.
			return true
		}
	}
}

// SubtreeUsage returns the bytes stored by the tenant and all of its
// descendants. Used by administrative usage reporting.
func (a *Accountant) SubtreeUsage(tenantID string) int64 {
	return a.subtreeUsage(a.dir.Snapshot(), tenantID)
}

func (a *Accountant) subtreeUsage(snap *tenant.Snapshot, id string) int64 {
	node, ok := snap.Get(id)
	if !ok {
		return 0
	}
	total := a.ledger.Get(id)
	for _, child := range node.ChildIDs {
		total += a.subtreeUsage(snap, child)
	}
	return total
}
