// Package storage defines the common interface for object-storage adapters.
// It abstracts the read/write/list primitives the pipeline relies on, allowing
// the planner and the transform step to run against different backends
// (GCS in production, the local file system in development and tests).
package storage

import (
	"context"
	"io"
)

// Connection represents a single object-storage connection.
// Implementations are constructed explicitly and passed in as dependencies;
// there are no package-level singletons, which keeps the planner testable
// against fake listing backends.
type Connection interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error

	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)

	// ListObjects lists object keys within the specified bucket and prefix.
	// The 'fn' callback is called for each object name found, letting callers
	// process large listings without holding every key in memory. Pagination
	// is handled by the implementation.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error

	// ListCommonPrefixes performs a delimiter-based listing and invokes 'fn'
	// for each common prefix directly below 'prefix'. This is the hierarchical
	// enumeration used to walk date, city and hour partitions without a full
	// object scan.
	ListCommonPrefixes(ctx context.Context, bucket, prefix, delimiter string, fn func(commonPrefix string) error) error

	// Exists probes whether at least one object exists under the given prefix.
	// The result is typed: (true, nil) means found, (false, nil) means the
	// prefix holds nothing, and a non-nil error means the probe itself failed
	// and the caller must not conflate that with absence.
	Exists(ctx context.Context, bucket, prefix string) (bool, error)

	// Scheme returns the URI scheme used to build fully-qualified object
	// references for this backend (e.g., "gs", "file").
	Scheme() string

	// Type returns the adapter type identifier (e.g., "gcs", "local").
	Type() string

	// Name returns the configured name of this connection.
	Name() string

	// Close releases any resources held by the connection.
	Close() error
}
