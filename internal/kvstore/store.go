// Package kvstore provides the key-value store shared by every replica for login
// rate limiting and the existence cache.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable wraps every transport or server failure
	ErrUnavailable = errors.New("kv store unavailable")
)

// Store is the contract the login pipeline needs from its shared backing store.
// Implementations must be safe for concurrent use across processes.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrWithTTL atomically increments key and returns the new value. The TTL is
	// applied when the key is created so the window is fixed from the first hit.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
