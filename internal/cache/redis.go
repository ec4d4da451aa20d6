package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client with common operations
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ctx: context.Background(),
	}
}

// Get retrieves a value from Redis
func (c *RedisCache) Get(key string) ([]byte, error) {
	val, err := c.client.Get(c.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Key doesn't exist
	}
	return val, err
}

// Set stores a value in Redis with TTL
func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.client.Set(c.ctx, key, value, ttl).Err()
}

// SetNX stores a value only if the key is absent. Returns whether it was stored.
func (c *RedisCache) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	return c.client.SetNX(c.ctx, key, value, ttl).Result()
}

// Counter reads an integer key, treating a missing key as zero
func (c *RedisCache) Counter(key string) (int64, error) {
	n, err := c.client.Get(c.ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Incr increments each key and refreshes its TTL in one round trip
func (c *RedisCache) Incr(ttl time.Duration, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(c.ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(c.ctx, key)
			pipe.Expire(c.ctx, key, ttl)
		}
		return nil
	})
	return err
}

// HSetExpire sets one hash field and refreshes the key's TTL
func (c *RedisCache) HSetExpire(key, field, value string, ttl time.Duration) error {
	_, err := c.client.TxPipelined(c.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(c.ctx, key, field, value)
		pipe.Expire(c.ctx, key, ttl)
		return nil
	})
	return err
}

// HDel removes fields from a hash
func (c *RedisCache) HDel(key string, fields ...string) error {
	return c.client.HDel(c.ctx, key, fields...).Err()
}

// HValsMany returns the field values of each hash, empty for missing keys
func (c *RedisCache) HValsMany(keys []string) ([][]string, error) {
	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HVals(c.ctx, key)
	}
	if _, err := pipe.Exec(c.ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([][]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// Publish sends a payload on a pub/sub channel
func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.client.Publish(ctx, channel, payload).Err()
}

// PSubscribe subscribes to channels matching pattern. The caller closes the returned PubSub.
func (c *RedisCache) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return c.client.PSubscribe(ctx, pattern)
}

// Ping checks if Redis is alive
func (c *RedisCache) Ping() error {
	return c.client.Ping(c.ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
