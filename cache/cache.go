package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Store is a TTL key/value store. A zero ttl keeps the key until it is deleted.
// The token denylist is stored through it, either in memory or in Redis.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Counter is implemented by stores that can count live keys sharing a prefix.
type Counter interface {
	CountPrefix(ctx context.Context, prefix string) (int, error)
}
