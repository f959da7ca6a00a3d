package model

import "time"

// FileMetadata describes one stored file as an ordered list of chunks.
// This is a pure domain model with no persistence-specific dependencies or tags,
// shared across the service, repository, and transport layers.
type FileMetadata struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	FileSize         int64     `json:"file_size"`
	CreatedAt        time.Time `json:"created_at"`
	// ChunkIDs lists the chunks making up the file in concatenation order.
	// An empty list is valid and denotes a zero-length file.
	ChunkIDs []string `json:"chunk_ids"`
}
