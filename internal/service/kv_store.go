package service

import (
	"context"
	"sync"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

type InMemoryKeyValueStore struct {
	mu    sync.Mutex
	store map[string][]byte
}

func NewInMemoryKeyValueStore() *InMemoryKeyValueStore {
	return &InMemoryKeyValueStore{store: make(map[string][]byte)}
}

func (s *InMemoryKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	v, ok := s.store[key]
	s.mu.Unlock()
	if !ok {
		observability.RecordStoreOperation(ctx, "memory", "get", "not_found")
		return nil, domain.ErrKeyNotFound
	}
	observability.RecordStoreOperation(ctx, "memory", "get", "success")
	return append([]byte(nil), v...), nil
}

func (s *InMemoryKeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.store[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	observability.RecordStoreOperation(ctx, "memory", "set", "success")
	return nil
}

func (s *InMemoryKeyValueStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.store, key)
	s.mu.Unlock()
	observability.RecordStoreOperation(ctx, "memory", "delete", "success")
	return nil
}

func (s *InMemoryKeyValueStore) Take(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	v, ok := s.store[key]
	delete(s.store, key)
	s.mu.Unlock()
	if !ok {
		observability.RecordStoreOperation(ctx, "memory", "take", "not_found")
		return nil, domain.ErrKeyNotFound
	}
	observability.RecordStoreOperation(ctx, "memory", "take", "success")
	return v, nil
}

func (s *InMemoryKeyValueStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}
