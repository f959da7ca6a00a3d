package apperr

import "errors"

// Package apperr defines the stable failure categories shared by the tenant
// directory, the storage service, and the transport layer. Callers match with
// errors.Is; wrapping with fmt.Errorf("...: %w", err) preserves the category.
//
// All of these mean "retry is pointless". Transient I/O failures are returned
// as ordinary errors outside this set and are the only category a client may
// reasonably retry.
var (
	// ErrNotFound is returned when a tenant, file, or chunk does not exist at
	// the given scope. Also used when a target tenant id resolves to no node
	// anywhere in the tree, so that callers cannot probe for tenant existence.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied is returned when the target tenant exists but the caller
	// has no hierarchy relationship granting access to it.
	ErrAccessDenied = errors.New("access denied")

	// ErrQuotaExceeded is returned when a write would push a limited ancestor's
	// subtree usage past its configured limit. The written chunk has already
	// been rolled back when this is returned.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrDepthExceeded is returned when creating a sub-tenant would exceed the
	// configured maximum hierarchy depth.
	ErrDepthExceeded = errors.New("tenant hierarchy depth exceeded")

	// ErrInvalidArgument is returned for empty identifiers, negative sizes, and
	// negative limits.
	ErrInvalidArgument = errors.New("invalid argument")
)
