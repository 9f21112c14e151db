// Package storage abstracts the object store that holds archived submission
// sources. The interface is intentionally small so MinIO can be swapped for
// any S3-compatible backend without touching business logic.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used by the source archive.
type ObjectStorage interface {
	// GetObject opens a reader for an object. Caller must close it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// PutObject stores an object. A negative size is allowed for streams
	// of unknown length.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// RemoveObject deletes an object. Removing a missing object is not an error.
	RemoveObject(ctx context.Context, bucket, objectKey string) error
}
