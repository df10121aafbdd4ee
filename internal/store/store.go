// Package store wraps the S3-compatible bucket that is the only shared
// surface between the workstation and the GPU workers. The interface is
// minimal and total: each operation succeeds fully or returns an error.
// Mirror and Pull are multi-object and therefore not atomic; callers
// tolerate partial trees because every input they carry is idempotent.
package store

import (
	"context"
	"time"
)

// ObjectInfo is the metadata subset the lifecycle protocol needs. The
// LastModified of a processing manifest is its claim time, because the
// claim is a copy.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the minimal object-store contract the rest of the system
// depends on. Rate-limit and retry policy live behind this interface,
// not in the business logic.
type Store interface {
	// List returns the keys under prefix, lexicographically sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get downloads one object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads one object, overwriting any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes one object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists probes one key.
	Exists(ctx context.Context, key string) (bool, error)

	// Stat returns metadata for one object; the error wraps
	// common.ErrNotFound for a missing key.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Move performs a server-side copy then delete. If the source is
	// already gone the returned error wraps common.ErrNotFound; the
	// claim protocol treats that as "another worker won".
	Move(ctx context.Context, src, dst string) error

	// Mirror recursively uploads a local directory under prefix.
	Mirror(ctx context.Context, localPath, prefix string) error

	// Pull recursively downloads every object under prefix into localPath,
	// preserving the relative tree.
	Pull(ctx context.Context, prefix, localPath string) error
}
