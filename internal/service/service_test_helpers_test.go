package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
)

const testSigningSecret = "0123456789abcdef0123456789abcdef"

// newTestRedis starts a miniredis server torn down with the test.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fakeDirectory struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	delay      time.Duration
	err        error
	onFindByID func()
}

func newFakeDirectory(identities ...domain.Identity) *fakeDirectory {
	d := &fakeDirectory{identities: make(map[string]domain.Identity)}
	for _, id := range identities {
		d.identities[id.ID] = id
	}
	return d
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	if d.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(d.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *fakeDirectory) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, id := range d.identities {
		if domain.NormalizeEmail(id.Email) == email {
			found := id
			return &found, nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (d *fakeDirectory) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	if d.onFindByID != nil {
		d.onFindByID()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	found, ok := d.identities[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return &found, nil
}

func (d *fakeDirectory) remove(id string) {
	d.mu.Lock()
	delete(d.identities, id)
	d.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainStore hides Take so the store can be wrapped by NewLockingStore.
type plainStore struct {
	inner *InMemoryKeyValueStore
	gap   time.Duration
}

func (p plainStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := p.inner.Get(ctx, key)
	if err == nil && p.gap > 0 {
		time.Sleep(p.gap)
	}
	return v, err
}

func (p plainStore) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, key, value)
}

func (p plainStore) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, key)
}

type failingStore struct {
	*InMemoryKeyValueStore
	setErr error
}

func (f failingStore) Set(context.Context, string, []byte) error { return f.setErr }

var errStoreDown = errors.New("store down")

func aliceIdentity() domain.Identity {
	company := "C7"
	return domain.Identity{ID: "U1", Email: "alice@example.com", Name: "Alice", CompanyID: &company}
}

type credentialFixture struct {
	svc       *CredentialService
	store     *InMemoryKeyValueStore
	directory *fakeDirectory
	clock     *testClock
	signer    *security.SessionManager
}

func newCredentialFixture(t *testing.T, store KeyValueStore) credentialFixture {
	t.Helper()
	clock := newTestClock()
	mem, _ := store.(*InMemoryKeyValueStore)
	if store == nil {
		mem = NewInMemoryKeyValueStore()
		store = mem
	}
	directory := newFakeDirectory(aliceIdentity())
	signer := security.NewSessionManager("portal-credential-exchange", "client-portal", testSigningSecret).WithClock(clock.Now)
	sessions := NewSessionService(store, time.Second)
	sessions.now = clock.Now
	svc := NewCredentialService(directory, store, sessions, signer, CredentialServiceConfig{
		PublicBaseURL:       "https://portal.example.com/",
		DefaultTTL:          24 * time.Hour,
		MaxTTL:              168 * time.Hour,
		SessionTTL:          24 * time.Hour,
		CollaboratorTimeout: time.Second,
	})
	svc.now = clock.Now
	return credentialFixture{svc: svc, store: mem, directory: directory, clock: clock, signer: signer}
}
