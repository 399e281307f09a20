// Package blob defines BlobStore, the content-addressed byte storage that
// ArtifactStore writes large Parts into. Concrete backends live in
// subpackages (memory for tests, s3 for production).
package blob

import (
	"context"
	"io"
)

// PutOptions carries metadata attached to a stored blob.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store persists and retrieves raw bytes addressed by a caller-assigned key
// (ArtifactStore uses the artifact's relative path). Implementations must be
// safe for concurrent use.
type Store interface {
	// Put writes data under key, overwriting any existing blob at that key.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the blob stored under key. Callers must Close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every blob whose key starts with prefix, used to
	// recursively clear a task's artifact namespace.
	DeletePrefix(ctx context.Context, prefix string) error
}
