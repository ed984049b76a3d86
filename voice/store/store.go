// Package store provides the durable key-value storage used to persist
// fallback state across application restarts.
package store

import "context"

// Store is a minimal durable key-value interface. Staleness checking is the
// consumer's responsibility; stores only move bytes.
type Store interface {
	// Get returns the value for key, or voice.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}
