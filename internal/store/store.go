// Package store provides a pluggable key-value store used for hot counters
// and short-lived coordination state (daily check-in quotas, sweep locks).
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found in the store.
var ErrNotFound = errors.New("store: key not found")

// Store is the interface for the key-value store.
type Store interface {
	// Set stores a key-value pair with an optional TTL (0 means no expiry).
	Set(key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by its key. Returns ErrNotFound if missing.
	Get(key string) ([]byte, error)

	// Delete removes a value by its key.
	Delete(key string) error

	// Exists checks if a key exists.
	Exists(key string) (bool, error)

	// SetNX sets a key-value pair only if the key does not already exist.
	// Returns true if the value was set. Used for cross-node sweep locks.
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)

	// Incr atomically increments a counter and returns the new value. The TTL
	// is applied when the counter is first created (daily quota windows).
	Incr(key string, ttl time.Duration) (int64, error)

	// Clear removes all data.
	Clear() error

	// Close releases any resources held by the store.
	Close() error
}
