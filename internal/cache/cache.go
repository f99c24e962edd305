package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores serialized values under string keys with an optional expiration.
type Cache interface {
	// Get returns the value and true, or "" and false when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Type names the backend selected by NewWithFallback.
type Type string

const (
	TypeRedis  Type = "redis"
	TypeMemory Type = "memory"
)

// NewRedisClient returns a client for addr, or nil when addr is empty.
func NewRedisClient(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewWithFallback returns a Redis cache when client is set and answers PING,
// and an in-memory cache otherwise.
func NewWithFallback(ctx context.Context, client *redis.Client) Cache {
	if client == nil {
		slog.Info("using in-memory cache")
		return NewMemory(time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unavailable, falling back to in-memory cache", slog.Any("error", err))
		_ = client.Close()
		return NewMemory(time.Minute)
	}

	slog.Info("using redis cache", slog.String("addr", client.Options().Addr))
	return NewRedis(client)
}

// TypeOf reports which backend c uses.
func TypeOf(c Cache) Type {
	if _, ok := c.(*redisCache); ok {
		return TypeRedis
	}
	return TypeMemory
}

type redisCache struct {
	client *redis.Client
}

// NewRedis wraps a Redis client.
func NewRedis(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
