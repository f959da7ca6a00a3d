package storage

import (
	"context"
	"io"
)

// Package storage contains the blob backends that hold chunk and metadata
// objects. Implementations rely on streaming I/O only and publish objects
// atomically: a reader never observes a partially-written object.

// PutResult describes a completed upload. Size is the number of bytes
// actually written, which callers need because streams arrive with unknown
// length and quota accounting happens after the write.
type PutResult struct {
	Key  string
	Size int64
}

// Storage is a tenant-agnostic blob store keyed by slash-separated keys.
// Key layout is owned by the callers (see ChunkKey/MetadataKey); backends
// treat keys as opaque paths.
type Storage interface {
	// Put streams r into the object at key, replacing any existing object.
	// The stream length need not be known in advance.
	Put(ctx context.Context, key string, r io.Reader) (PutResult, error)
	// Get opens the object for reading. Returns apperr.ErrNotFound (wrapped)
	// when the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Size reports the stored size of the object, apperr.ErrNotFound if absent.
	Size(ctx context.Context, key string) (int64, error)
	// Delete removes the object. Deleting an absent object is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys of all objects directly under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ChunkKey is the backend key of one raw chunk:
// <tenantID>/bin/<chunkID>.bin
func ChunkKey(tenantID, chunkID string) string {
	return tenantID + "/bin/" + chunkID + ".bin"
}

// ChunkPrefix is the listing prefix for a tenant's chunks.
func ChunkPrefix(tenantID string) string {
	return tenantID + "/bin/"
}

// MetadataKey is the backend key of one file metadata record:
// <tenantID>/metadata/<fileID>.json
func MetadataKey(tenantID, fileID string) string {
	return tenantID + "/metadata/" + fileID + ".json"
}

// MetadataPrefix is the listing prefix for a tenant's metadata records.
func MetadataPrefix(tenantID string) string {
	return tenantID + "/metadata/"
}
