// Package storage provides the persistence layer for PageLens: a small
// key-value contract with file and SQLite backends, plus typed repositories
// for settings, page-summary caching and chat history.
package storage

import "context"

// KV is the key-value store contract the core persists through. Values are
// opaque bytes; repositories layer JSON on top.
type KV interface {
	// Get returns the value for key. The second return is false when the
	// key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
