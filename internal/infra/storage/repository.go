package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key doesn't exist
	ErrNotFound = errors.New("key not found")

	// ErrCapacityExceeded is returned when the backend refuses a write for lack of space
	ErrCapacityExceeded = errors.New("storage capacity exceeded")
)

// KV is the durable key-value persistence used by the audit logger.
type KV interface {
	// Get retrieves a value, ErrNotFound if absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, ErrCapacityExceeded if the backend is full
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Clear removes every key owned by this store
	Clear(ctx context.Context) error

	// Keys lists keys with the given prefix in ascending order
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backend
	Close() error
}
