package service

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

// RedisKeyValueStore keeps keys under prefix without expiry; expired magic links are removed
// lazily by the exchange path.
type RedisKeyValueStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisKeyValueStore(client redis.UniversalClient, prefix string) *RedisKeyValueStore {
	if prefix == "" {
		prefix = "portal"
	}
	return &RedisKeyValueStore{client: client, prefix: prefix}
}

func (s *RedisKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	return s.result(ctx, "get", v, err)
}

func (s *RedisKeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.dataKey(key), value, 0).Err(); err != nil {
		observability.RecordStoreOperation(ctx, "redis", "set", "error")
		return err
	}
	observability.RecordStoreOperation(ctx, "redis", "set", "success")
	return nil
}

func (s *RedisKeyValueStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.dataKey(key)).Err(); err != nil {
		observability.RecordStoreOperation(ctx, "redis", "delete", "error")
		return err
	}
	observability.RecordStoreOperation(ctx, "redis", "delete", "success")
	return nil
}

// Take uses GETDEL, which is atomic on the server.
func (s *RedisKeyValueStore) Take(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.GetDel(ctx, s.dataKey(key)).Bytes()
	return s.result(ctx, "take", v, err)
}

func (s *RedisKeyValueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisKeyValueStore) result(ctx context.Context, op string, v []byte, err error) ([]byte, error) {
	if errors.Is(err, redis.Nil) {
		observability.RecordStoreOperation(ctx, "redis", op, "not_found")
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		observability.RecordStoreOperation(ctx, "redis", op, "error")
		return nil, err
	}
	observability.RecordStoreOperation(ctx, "redis", op, "success")
	return v, nil
}

func (s *RedisKeyValueStore) dataKey(key string) string {
	return s.prefix + ":" + key
}
