// Package chunker implements the client side of the chunked transfer
// protocol: splitting an upload stream into fixed-size chunks and
// reassembling a download from its chunk list.
package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filedepot/internal/model"
)

// TransferClient is the remote surface the protocol runs against. The HTTP
// client implements it against the API; tests substitute an in-memory fake.
type TransferClient interface {
	// ChunkSize reports the server's chunk size.
	ChunkSize(ctx context.Context) (int64, error)

	// SaveChunk uploads one chunk and returns its server-assigned id.
	SaveChunk(ctx context.Context, r io.Reader) (string, error)

	// GetChunk opens one chunk for reading.
	GetChunk(ctx context.Context, chunkID string) (io.ReadCloser, error)

	// CommitFile publishes the metadata record, completing an upload.
	CommitFile(ctx context.Context, meta *model.FileMetadata) (*model.FileMetadata, error)

	// GetFile fetches one metadata record.
	GetFile(ctx context.Context, fileID string) (*model.FileMetadata, error)
}

// Client drives uploads and downloads over a TransferClient.
type Client struct {
	remote TransferClient
}

func New(remote TransferClient) *Client {
	return &Client{remote: remote}
}

// Upload reads r to the end, uploading one chunk per chunk-size slice, and
// commits the metadata record once after the last chunk. Any failure before
// the commit surfaces the error and leaves no visible file; already uploaded
// chunks become unreferenced garbage on the server. A zero-length stream
// commits a record with size 0 and no chunks.
func (c *Client) Upload(ctx context.Context, r io.Reader, filename, contentType string) (*model.FileMetadata, error) {
	if r == nil {
		return nil, errors.New("upload stream is nil")
	}
	chunkSize, err := c.remote.ChunkSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk size: %w", err)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid remote chunk size %d", chunkSize)
	}

	var total int64
	chunkIDs := []string{}
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			id, saveErr := c.remote.SaveChunk(ctx, bytes.NewReader(buf[:n]))
			if saveErr != nil {
				return nil, fmt.Errorf("upload chunk %d: %w", len(chunkIDs), saveErr)
			}
			chunkIDs = append(chunkIDs, id)
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read upload stream: %w", err)
		}
	}

	meta, err := c.remote.CommitFile(ctx, &model.FileMetadata{
		OriginalFilename: filename,
		ContentType:      contentType,
		FileSize:         total,
		ChunkIDs:         chunkIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("commit file: %w", err)
	}
	return meta, nil
}

// Download fetches the metadata record and returns it together with a reader
// over the file's content. Chunks are opened lazily, one at a time, as the
// caller reads past each boundary.
func (c *Client) Download(ctx context.Context, fileID string) (*model.FileMetadata, io.ReadCloser, error) {
	meta, err := c.remote.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch file metadata: %w", err)
	}
	return meta, &chunkReader{ctx: ctx, remote: c.remote, pending: meta.ChunkIDs}, nil
}

// chunkReader concatenates chunk streams in order. It holds at most one open
// chunk at a time.
type chunkReader struct {
	ctx     context.Context
	remote  TransferClient
	pending []string
	cur     io.ReadCloser
	closed  bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("chunk reader is closed")
	}
	for {
		if r.cur == nil {
			if len(r.pending) == 0 {
				return 0, io.EOF
			}
			rc, err := r.remote.GetChunk(r.ctx, r.pending[0])
			if err != nil {
				return 0, fmt.Errorf("open chunk %s: %w", r.pending[0], err)
			}
			r.pending = r.pending[1:]
			r.cur = rc
		}
		n, err := r.cur.Read(p)
		if err == nil || !errors.Is(err, io.EOF) {
			return n, err
		}
		// Current chunk exhausted; move on without losing read bytes.
		if closeErr := r.cur.Close(); closeErr != nil {
			return n, fmt.Errorf("close chunk: %w", closeErr)
		}
		r.cur = nil
		if n > 0 {
			return n, nil
		}
	}
}

func (r *chunkReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cur != nil {
		err := r.cur.Close()
		r.cur = nil
		return err
	}
	return nil
}
