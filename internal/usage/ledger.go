package usage

import "sync"

// Package usage tracks bytes currently stored per tenant. Counters cover only
// the tenant's own chunks, not its descendants; subtree totals are computed by
// the quota accountant on top of these values.

// Ledger is a concurrency-safe map of per-tenant byte counters.
// Entries are created lazily on first use and removed only when a tenant is
// deleted. The zero value is not usable; construct with NewLedger.
type Ledger struct {
	mu    sync.Mutex
	bytes map[string]int64
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{bytes: make(map[string]int64)}
}

// Add records n additional bytes stored by the tenant.
func (l *Ledger) Add(tenantID string, n int64) {
	if n == 0 {
		return
	}
	l.mu.Lock()
	l.bytes[tenantID] += n
	l.mu.Unlock()
}

// Sub records n bytes freed by the tenant. The counter floors at zero so a
// double delete can never drive recorded usage negative.
func (l *Ledger) Sub(tenantID string, n int64) {
	if n == 0 {
		return
	}
	l.mu.Lock()
	v := l.bytes[tenantID] - n
	if v < 0 {
		v = 0
	}
	l.bytes[tenantID] = v
	l.mu.Unlock()
}

// Get returns the bytes currently recorded for the tenant (zero if unknown).
func (l *Ledger) Get(tenantID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytes[tenantID]
}

// Remove drops the tenant's counter entirely. Used on tenant deletion.
func (l *Ledger) Remove(tenantID string) {
	l.mu.Lock()
	delete(l.bytes, tenantID)
	l.mu.Unlock()
}
