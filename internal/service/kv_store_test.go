package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
)

func exerciseKeyValueStore(t *testing.T, store KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "magic_link:missing"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
	if err := store.Set(ctx, "magic_link:t1", []byte(`{"identityId":"U1"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "magic_link:t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"identityId":"U1"}` {
		t.Fatalf("unexpected value %q", got)
	}

	taken, err := store.Take(ctx, "magic_link:t1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if string(taken) != `{"identityId":"U1"}` {
		t.Fatalf("unexpected taken value %q", taken)
	}
	if _, err := store.Take(ctx, "magic_link:t1"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected second take to miss, got %v", err)
	}

	if err := store.Set(ctx, "session:U1", []byte("a")); err != nil {
		t.Fatalf("set session: %v", err)
	}
	if err := store.Set(ctx, "session:U1", []byte("b")); err != nil {
		t.Fatalf("overwrite session: %v", err)
	}
	got, err = store.Get(ctx, "session:U1")
	if err != nil || string(got) != "b" {
		t.Fatalf("expected overwritten value, got %q err=%v", got, err)
	}
	if err := store.Delete(ctx, "session:U1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "session:U1"); err != nil {
		t.Fatalf("delete absent key: %v", err)
	}
	if _, err := store.Get(ctx, "session:U1"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected deleted key to miss, got %v", err)
	}
}

func TestInMemoryKeyValueStore(t *testing.T) {
	exerciseKeyValueStore(t, NewInMemoryKeyValueStore())
}

func TestInMemoryKeyValueStoreCopiesValues(t *testing.T) {
	store := NewInMemoryKeyValueStore()
	value := []byte("abc")
	if err := store.Set(context.Background(), "k", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'z'
	got, _ := store.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("expected stored copy, got %q", got)
	}
}

func TestRedisKeyValueStore(t *testing.T) {
	server, client := newTestRedis(t)
	store := NewRedisKeyValueStore(client, "kv_test")
	exerciseKeyValueStore(t, store)

	if err := store.Set(context.Background(), "magic_link:t2", []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !server.Exists("kv_test:magic_link:t2") {
		t.Fatal("expected prefixed key in redis")
	}
	if ttl := server.TTL("kv_test:magic_link:t2"); ttl != 0 {
		t.Fatalf("expected no redis expiry, got %s", ttl)
	}
}

func TestLockingStore(t *testing.T) {
	exerciseKeyValueStore(t, NewLockingStore(plainStore{inner: NewInMemoryKeyValueStore()}, nil))
}
