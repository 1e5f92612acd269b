package port

import (
	"context"
	"io"
	"time"
)

// BlobStorage stores attachment content by key
type BlobStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error

	// URL returns a time-limited download link
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
