// Package cache provides the keyed dependency-cache store consulted before
// a run and refreshed after it. A miss is a soft condition: the run proceeds
// with an empty directory. Concurrent writers to the same key are resolved
// last-write-wins; the cache can only affect latency, never a verdict.
package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when no blob is stored under the key.
var ErrMiss = errors.New("cache miss")

// Store is a keyed blob store. Blobs are opaque tar.gz archives of a
// directory tree (see Pack/Unpack). Entries are never deleted by the
// runner; eviction is an external concern.
type Store interface {
	// Get returns the blob stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores blob under key, replacing any existing content.
	Put(ctx context.Context, key string, blob []byte) error

	// Close releases any underlying resources.
	Close() error
}
