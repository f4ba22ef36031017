package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache backs Cache with a shared Redis instance, so the dedup view is
// consistent across multiple core processes — the degraded-mode default is
// MemoryCache, used automatically when REDIS_URL is unset.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to addr and returns a RedisCache.
func NewRedisCache(addr string) (*RedisCache, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		// Fall back to treating addr as a bare host:port.
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client, prefix: "tracecore:dedup:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, scope string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+scope).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, scope string, alertID string, window time.Duration) error {
	return c.client.Set(ctx, c.prefix+scope, alertID, window).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
