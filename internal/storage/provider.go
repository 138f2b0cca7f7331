// Package storage defines the blob store contract used to persist the
// discovery cache. Implementations exist for the local filesystem, Google
// Cloud Storage, and memory (development and tests).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore reads and writes opaque blobs by key. Put must be atomic enough
// that a later Get never observes a partially written blob under a
// single-writer assumption; no multi-writer locking is promised.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
