// Package storage defines the object store abstraction used to publish contract
// metadata documents. Concrete backends (local, s3, azure, gcs) live in
// sub-packages and register themselves with Register from an init function, so
// the binary only needs a blank import to make a backend selectable by name.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Stat when no object exists at the path.
var ErrNotFound = errors.New("storage: object not found")

// Storage is the minimal object store surface needed for metadata documents.
// Paths are slash-separated keys relative to the backend root.
type Storage interface {
	// Put writes data at path, replacing any existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) (*ObjectInfo, error)

	// Get returns the full contents of the object at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// Stat returns object metadata without reading the body.
	Stat(ctx context.Context, path string) (*ObjectInfo, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Path         string
	Size         int64
	Checksum     string // SHA256 hex
	ContentType  string
	LastModified time.Time
}

// BucketEnsurer is implemented by cloud backends that can create their
// bucket or container on first use.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// Ensure creates the backing bucket when the backend supports it.
func Ensure(ctx context.Context, s Storage) error {
	if e, ok := s.(BucketEnsurer); ok {
		return e.EnsureBucket(ctx)
	}
	return nil
}
