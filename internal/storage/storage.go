// Package storage defines the object-storage seam used to persist the
// deployed runtime's scheduler job ID between controller invocations.
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Get when the key has no object.
var ErrNotExist = errors.New("storage: object does not exist")

// Bucket is a minimal put/get/delete object store, narrow enough that a
// local filesystem, GCS, or any other blob store can implement it.
type Bucket interface {
	// Put writes value under key, replacing any existing object.
	Put(ctx context.Context, key string, value []byte) error

	// Get reads the object at key. Returns ErrNotExist if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at key. Not an error if key is absent.
	Delete(ctx context.Context, key string) error
}
