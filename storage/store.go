package storage

import "context"

// Store is the persistence contract. Values are JSON-serializable documents
// keyed by caller-chosen strings. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save writes the value under key, replacing any previous value.
	Save(ctx context.Context, key string, value map[string]any) error
	// Load returns the value stored under key, or core.ErrNotFound.
	Load(ctx context.Context, key string) (map[string]any, error)
	// List returns all stored keys in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete removes the value under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Clear removes every stored value.
	Clear(ctx context.Context) error
}
