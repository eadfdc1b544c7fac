package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisMissCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMissCache(client redis.UniversalClient, prefix string) *RedisMissCache {
	if prefix == "" {
		prefix = "directory_miss"
	}
	return &RedisMissCache{client: client, prefix: prefix}
}

func (c *RedisMissCache) Seen(ctx context.Context, email string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(email)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisMissCache) Remember(ctx context.Context, email string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(email), "1", ttl).Err()
}

func (c *RedisMissCache) Forget(ctx context.Context, email string) error {
	err := c.client.Del(ctx, c.key(email)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *RedisMissCache) key(email string) string {
	return c.prefix + ":" + missKey(email)
}
