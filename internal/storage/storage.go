// Package storage defines the interface for object storage operations.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider.
package storage

import (
	"context"
	"io"
)

// Storage is the contract the upload pipeline holds against the remote
// object store: store bytes under a key, get back a public URL.
type Storage interface {
	// Upload streams data to the store under the given key and returns the
	// browser-accessible URL for it.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	// Delete removes an object identified by key.
	Delete(ctx context.Context, key string) error
}
