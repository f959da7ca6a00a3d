package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"filedepot/internal/tenant"
)

const (
	// APIKeyHeader carries the caller's tenant API key.
	APIKeyHeader = "X-API-Key"
	// TenantIDLocalKey is the fiber locals key holding the authenticated
	// tenant id. Empty when authentication is disabled and no key was sent.
	TenantIDLocalKey = "tenant_id"
	// TenantAdminLocalKey is the fiber locals key holding the caller's admin
	// flag.
	TenantAdminLocalKey = "tenant_is_admin"
)

// Authenticator resolves X-API-Key headers against the tenant directory.
// Failed lookups cost the remote address a fixed delay, which caps the rate
// of brute-force key guessing without any per-key state.
type Authenticator struct {
	dir       *tenant.Directory
	failDelay time.Duration

	mu    sync.Mutex
	gates map[string]*sync.Mutex
}

// NewAuthenticator constructs the Authenticator. failDelay <= 0 disables the
// brute-force delay (used by tests).
func NewAuthenticator(dir *tenant.Directory, failDelay time.Duration) *Authenticator {
	return &Authenticator{
		dir:       dir,
		failDelay: failDelay,
		gates:     map[string]*sync.Mutex{},
	}
}

// Handler authenticates the request. A presented key must always resolve,
// whether or not authentication is required; a missing key is only tolerated
// when the tenant file disables RequireAuthentication, in which case the
// request proceeds without a caller identity and handlers fall back to the
// path tenant.
func (a *Authenticator) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(APIKeyHeader)
		if key == "" {
			if a.dir.RequireAuthentication() {
				return fiber.NewError(fiber.StatusUnauthorized, "missing API key")
			}
			return c.Next()
		}

		id, err := a.dir.Resolve(key)
		if err != nil {
			a.penalize(c.IP())
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}

		c.Locals(TenantIDLocalKey, id)
		if t, err := a.dir.Get(id); err == nil {
			c.Locals(TenantAdminLocalKey, t.IsAdmin)
		}
		return c.Next()
	}
}

// penalize sleeps for the fixed delay, serialized per remote address so a
// burst of guesses from one address pays the delay per attempt.
func (a *Authenticator) penalize(addr string) {
	if a.failDelay <= 0 {
		return
	}
	a.mu.Lock()
	gate, ok := a.gates[addr]
	if !ok {
		gate = &sync.Mutex{}
		a.gates[addr] = gate
	}
	a.mu.Unlock()

	gate.Lock()
	time.Sleep(a.failDelay)
	gate.Unlock()
}
