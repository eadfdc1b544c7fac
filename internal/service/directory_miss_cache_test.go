package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
)

type countingDirectory struct {
	*fakeDirectory
	byEmail atomic.Int32
}

func (d *countingDirectory) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	d.byEmail.Add(1)
	return d.fakeDirectory.FindByEmail(ctx, email)
}

func exerciseMissCache(t *testing.T, cache MissCache, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	if seen, err := cache.Seen(ctx, "ghost@example.com"); err != nil || seen {
		t.Fatalf("expected initial miss, seen=%v err=%v", seen, err)
	}
	if err := cache.Remember(ctx, " Ghost@Example.com", time.Minute); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if seen, err := cache.Seen(ctx, "ghost@example.com"); err != nil || !seen {
		t.Fatalf("expected normalized hit, seen=%v err=%v", seen, err)
	}
	if err := cache.Forget(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if seen, _ := cache.Seen(ctx, "ghost@example.com"); seen {
		t.Fatal("expected miss after forget")
	}

	if err := cache.Remember(ctx, "ghost@example.com", 2*time.Second); err != nil {
		t.Fatalf("remember: %v", err)
	}
	expire(3 * time.Second)
	if seen, _ := cache.Seen(ctx, "ghost@example.com"); seen {
		t.Fatal("expected entry to expire")
	}

	if err := cache.Remember(ctx, "zero@example.com", 0); err != nil {
		t.Fatalf("remember zero ttl: %v", err)
	}
	if seen, _ := cache.Seen(ctx, "zero@example.com"); seen {
		t.Fatal("zero ttl must not cache")
	}
}

func TestInMemoryMissCache(t *testing.T) {
	clock := newTestClock()
	cache := NewInMemoryMissCache()
	cache.now = clock.Now
	exerciseMissCache(t, cache, clock.Advance)
}

func TestRedisMissCache(t *testing.T) {
	server, client := newTestRedis(t)
	cache := NewRedisMissCache(client, "portal:directory_miss")
	exerciseMissCache(t, cache, server.FastForward)

	if err := cache.Remember(context.Background(), "ghost@example.com", time.Minute); err != nil {
		t.Fatalf("remember: %v", err)
	}
	for _, key := range server.Keys() {
		if key == "portal:directory_miss:ghost@example.com" {
			t.Fatal("cache keys must not carry the email")
		}
	}
}

func TestCachedDirectorySkipsRepeatedMisses(t *testing.T) {
	inner := &countingDirectory{fakeDirectory: newFakeDirectory(aliceIdentity())}
	clock := newTestClock()
	cache := NewInMemoryMissCache()
	cache.now = clock.Now
	dir := NewCachedDirectory(inner, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := dir.FindByEmail(ctx, "ghost@example.com"); !errors.Is(err, domain.ErrIdentityNotFound) {
			t.Fatalf("lookup %d: expected not found, got %v", i, err)
		}
	}
	if got := inner.byEmail.Load(); got != 1 {
		t.Fatalf("expected one directory scan, got %d", got)
	}

	for i := 0; i < 2; i++ {
		if got, err := dir.FindByEmail(ctx, "alice@example.com"); err != nil || got.ID != "U1" {
			t.Fatalf("hit lookup: %+v %v", got, err)
		}
	}
	if got := inner.byEmail.Load(); got != 3 {
		t.Fatalf("hits must not be cached, scans=%d", got)
	}

	clock.Advance(time.Minute)
	_, _ = dir.FindByEmail(ctx, "ghost@example.com")
	if got := inner.byEmail.Load(); got != 4 {
		t.Fatalf("expected rescan after ttl, scans=%d", got)
	}
}

func TestCachedDirectoryDoesNotCacheFailures(t *testing.T) {
	inner := &countingDirectory{fakeDirectory: newFakeDirectory()}
	inner.err = context.DeadlineExceeded
	dir := NewCachedDirectory(inner, NewInMemoryMissCache(), time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := dir.FindByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	}
	if got := inner.byEmail.Load(); got != 2 {
		t.Fatalf("failures must not be cached, scans=%d", got)
	}
}

func TestIssueForUnknownEmailUsesMissCache(t *testing.T) {
	f := newCredentialFixture(t, nil)
	inner := &countingDirectory{fakeDirectory: f.directory}
	f.svc.directory = NewCachedDirectory(inner, NewInMemoryMissCache(), time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.IssueMagicLink(context.Background(), "ghost@example.com", time.Hour); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if got := inner.byEmail.Load(); got != 1 {
		t.Fatalf("expected one directory scan, got %d", got)
	}
	if _, err := f.svc.IssueMagicLink(context.Background(), "alice@example.com", time.Hour); err != nil {
		t.Fatalf("issue for known email: %v", err)
	}
}
