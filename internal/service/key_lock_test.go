package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalKeyLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalKeyLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	other, err := locker.Lock(ctx, "other")
	if err != nil {
		t.Fatalf("lock other key: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	if n := locker.size(); n != 0 {
		t.Fatalf("expected lock table to drain, %d entries left", n)
	}
}

func TestLocalKeyLockerMutualExclusion(t *testing.T) {
	locker := NewLocalKeyLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "shared")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestRedisKeyLockerAcquireReleaseAndExpiry(t *testing.T) {
	server, client := newTestRedis(t)
	locker := NewRedisKeyLocker(client, "lock_test", time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "magic_link:abc")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !server.Exists("lock_test:magic_link:abc") {
		t.Fatal("expected lock key in redis")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "magic_link:abc"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}

	unlock()
	if server.Exists("lock_test:magic_link:abc") {
		t.Fatal("expected lock key to be released")
	}

	if _, err := locker.Lock(ctx, "magic_link:def"); err != nil {
		t.Fatalf("lock def: %v", err)
	}
	server.FastForward(2 * time.Second)
	second, err := locker.Lock(ctx, "magic_link:def")
	if err != nil {
		t.Fatalf("expected expired lock to be reacquired: %v", err)
	}
	second()
}

func TestRedisKeyLockerReleaseKeepsForeignOwner(t *testing.T) {
	server, client := newTestRedis(t)
	locker := NewRedisKeyLocker(client, "lock_test", time.Second)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := server.Set("lock_test:k", "someone-else"); err != nil {
		t.Fatalf("overwrite owner: %v", err)
	}
	unlock()
	got, err := server.Get("lock_test:k")
	if err != nil || got != "someone-else" {
		t.Fatalf("expected foreign owner to survive release, got %q err=%v", got, err)
	}
}
