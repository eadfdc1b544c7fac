package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock not acquired")

// LocalKeyLocker is an in-process mutex table keyed by string. Entries are dropped once no
// goroutine holds or waits on them.
type LocalKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch      chan struct{}
	waiters int
}

func NewLocalKeyLocker() *LocalKeyLocker {
	return &LocalKeyLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.waiters++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(key, kl, true) }) }, nil
}

func (l *LocalKeyLocker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.waiters--
	if kl.waiters == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

func (l *LocalKeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

const redisLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisKeyLocker is a cross-process lock: SET NX PX with an owner token, released by a
// compare-and-delete script so a holder never frees a lock it lost to expiry.
type RedisKeyLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	script *redis.Script
}

func NewRedisKeyLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisKeyLocker {
	if prefix == "" {
		prefix = "lock"
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisKeyLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		script: redis.NewScript(redisLockReleaseScript),
	}
}

func (l *RedisKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + ":" + key
	owner := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, owner, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.script.Run(ctx, l.client, []string{lockKey}, owner).Err()
		})
	}, nil
}

// LockingStore gives a PlainStore an atomic Take by serializing get+delete per key. The guarantee
// only spans processes that share the Locker: a LocalKeyLocker covers one process, a
// RedisKeyLocker covers every replica pointed at the same Redis.
type LockingStore struct {
	PlainStore
	locker Locker
}

func NewLockingStore(store PlainStore, locker Locker) *LockingStore {
	if locker == nil {
		locker = NewLocalKeyLocker()
	}
	return &LockingStore{PlainStore: store, locker: locker}
}

func (s *LockingStore) Take(ctx context.Context, key string) ([]byte, error) {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()
	v, err := s.PlainStore.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.PlainStore.Delete(ctx, key); err != nil {
		return nil, err
	}
	return v, nil
}
