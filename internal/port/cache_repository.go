package port

import (
	"context"
	"time"
)

// Cache is a best-effort key/value store. It is never a source of truth.
type Cache interface {
	// Get reports whether the key was present and not expired
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key; ttl <= 0 uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// ClearByPrefix deletes exactly the keys starting with prefix
	ClearByPrefix(ctx context.Context, prefix string) error

	Clear(ctx context.Context) error
}
