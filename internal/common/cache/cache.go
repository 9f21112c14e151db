// Package cache provides a small key-value cache abstraction so business
// logic does not depend on a concrete Redis client.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in the cache.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache defines the key-value operations used by the store layer.
type Cache interface {
	// Get retrieves the value for the given key. Returns ErrCacheMiss
	// when the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL. A zero ttl means
	// the key does not expire.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error

	// Ping verifies the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}
