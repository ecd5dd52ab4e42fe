package cache

import (
	"context"
	"time"

	"tweet_ingestion/internal/metrics"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{c: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

func (r *RedisStore) Close() error { return r.c.Close() }

func (r *RedisStore) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	n, err := r.c.Exists(ctx, key).Result()
	metrics.ObserveRedisRequest("exists", time.Since(start), err)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := r.c.Set(ctx, key, value, ttl).Err()
	metrics.ObserveRedisRequest("set", time.Since(start), err)
	return err
}
