// Package storage defines the object store the image pipeline writes to.
//
// Implementations:
//   - storage/minio    → any S3-compatible bucket (MinIO, AWS S3, R2)
//   - storage/memstore → process memory, for development and tests
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Object is an open object body. Callers must Close it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStore stores immutable blobs under flat keys.
type ObjectStore interface {
	// Put stores data under key and returns the public URL of the object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (*Object, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
