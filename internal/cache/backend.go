package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMiss       = errors.New("cache miss")
	ErrInvalidTTL = errors.New("cache ttl must be at least one second")
)

// Backend is a key-value store with per-key expiry. Implementations must be
// safe for concurrent use; a failed command must leave earlier entries intact.
type Backend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
}
