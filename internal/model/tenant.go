package model

// Tenant is the runtime view of one tenant or sub-tenant.
// Parent and Children are maintained by the directory from the persisted nesting;
// they are id references rather than live pointers so that a whole tree can be
// swapped atomically without walking and relinking anything.
type Tenant struct {
	ID                string `json:"id"`
	APIKey            string `json:"api_key"`
	DisplayName       string `json:"display_name"`
	StorageLimitBytes int64  `json:"storage_limit_bytes"`
	IsAdmin           bool   `json:"is_admin"`

	// ParentID is empty for root tenants. Never serialized to the tenant
	// configuration file; the file encodes hierarchy by nesting instead.
	ParentID string `json:"-"`
	// ChildIDs holds the ids of direct sub-tenants, sorted for determinism.
	ChildIDs []string `json:"-"`
}

// TenantConfigEntry is the persisted form of one tenant in the configuration
// file. Hierarchy is expressed by nesting, so there is no parent reference to
// serialize (which would create a cycle).
type TenantConfigEntry struct {
	APIKey            string                        `json:"ApiKey"`
	DisplayName       string                        `json:"DisplayName"`
	StorageLimitBytes int64                         `json:"StorageLimitBytes"`
	IsAdmin           bool                          `json:"IsAdmin"`
	SubTenants        map[string]*TenantConfigEntry `json:"SubTenants,omitempty"`
}

// TenantConfigFile is the root document of the tenant configuration file.
type TenantConfigFile struct {
	RequireAuthentication bool                          `json:"RequireAuthentication"`
	Tenants               map[string]*TenantConfigEntry `json:"Tenants"`
}
