package cache

import (
	"context"
	"time"
)

// Store is the key/value surface the consumer needs from redis.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
