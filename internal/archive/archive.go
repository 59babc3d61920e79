// Package archive exports snapshots of the cache database to an object
// store, either a local directory or an S3 bucket.
package archive

import (
	"context"
	"errors"
	"io"
)

// Common errors for archive backends.
var (
	ErrObjectNotFound = errors.New("archive object not found")
	ErrUploadFailed   = errors.New("archive upload failed")
	ErrDownloadFailed = errors.New("archive download failed")
)

// Backend abstracts the destination of cache snapshots. Implementations
// include a local directory and S3.
type Backend interface {
	// Put stores an object under the given key, replacing any existing one.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the object stored under the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is stored under the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
