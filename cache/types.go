// Package cache defines the storage contract used by the response cache
// listener, the CBOR encoding of stored responses, and the errors shared by
// cache backends.
package cache

import (
	"context"
	"time"
)

// Cache defines the core interface for cache operations.
// All implementations must be thread-safe and context-aware.
//
// Example usage:
//
//	err = c.Set(ctx, "relay:GET:https://api.example.com/users", entryBytes, 5*time.Minute)
//	data, err := c.Get(ctx, "relay:GET:https://api.example.com/users")
//	if errors.Is(err, cache.ErrNotFound) {
//	    // miss
//	}
type Cache interface {
	// Get retrieves a value from the cache by key.
	// Returns ErrNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the specified TTL.
	// If ttl is 0, the value is stored without expiration.
	// Overwrites existing values.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error

	// Stats returns backend statistics such as hits and misses.
	Stats() (map[string]any, error)

	// Close releases the connection. The cache must not be used afterwards.
	Close() error
}
