// Package backend defines the object-store capability that shardstore
// requires from every storage node.
//
// A Client speaks to exactly one node. Implementations exist for MinIO
// (the default deployment), AWS S3, and an in-memory fake used by tests.
// The engine never assumes a wire protocol beyond this interface; clients
// are handed out by a Dialer so tests can inject fakes per node.
package backend

import (
	"context"
	"io"
)

// Client is the capability set against one remote object store.
// All methods must be safe for concurrent use from multiple workers.
type Client interface {
	// PutObject writes an object of the given length under key.
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, length int64) error

	// GetObject opens an object for reading. The caller must close the
	// returned reader. Returns ErrNotFound if the object does not exist.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Exists reports whether an object is present under key.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// RemoveObject deletes an object. Missing objects are not an error.
	RemoveObject(ctx context.Context, bucket, key string) error

	// EnsureBucket creates the bucket if it does not already exist.
	EnsureBucket(ctx context.Context, bucket string) error

	// HealthReady probes the node's readiness endpoint. A nil return
	// means the node can serve requests right now.
	HealthReady(ctx context.Context) error
}
