package service

import (
	"context"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
)

// IdentityDirectory resolves principals. Both lookups return domain.ErrIdentityNotFound on a miss.
type IdentityDirectory interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
}

// KeyValueStore is the durable store. Get and Take return domain.ErrKeyNotFound for absent keys.
// Take deletes the key and returns the value it held; when two callers race on the same key at
// most one of them receives the value.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Take(ctx context.Context, key string) ([]byte, error)
}

// PlainStore is a store without an atomic take; wrap it with NewLockingStore.
type PlainStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Locker serializes work on a single key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
