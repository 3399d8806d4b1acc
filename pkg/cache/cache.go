// Package cache provides a generic, thread-safe LRU cache used to keep
// recently accessed channel slices in memory. Statistics are always
// collected; Prometheus export is opt-in via WithMetrics.
package cache

import (
	"github.com/c360/cubestream/errors"
)

// Cache is the interface slice caches satisfy, parameterized by value
// type.
type Cache[V any] interface {
	// Get retrieves a value by key.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created,
	// false if an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Keys returns all keys, most recently used first.
	Keys() []string

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close releases any resources held by the cache.
	Close() error
}

// EvictCallback receives the key and value of each evicted entry.
type EvictCallback[V any] func(key string, value V)

// NewLRU creates a cache that evicts the least recently used entry
// once maxSize entries are held.
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "cache", "NewLRU", "max size must be positive")
	}
	return newLRUCache(maxSize, applyOptions(options...))
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
