package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

// MissCache remembers emails the directory recently failed to resolve.
type MissCache interface {
	Seen(ctx context.Context, email string) (bool, error)
	Remember(ctx context.Context, email string, ttl time.Duration) error
	Forget(ctx context.Context, email string) error
}

type InMemoryMissCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemoryMissCache() *InMemoryMissCache {
	return &InMemoryMissCache{entries: make(map[string]time.Time), now: time.Now}
}

func (c *InMemoryMissCache) Seen(_ context.Context, email string) (bool, error) {
	key := missKey(email)
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if !c.now().Before(expiresAt) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

func (c *InMemoryMissCache) Remember(_ context.Context, email string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[missKey(email)] = c.now().Add(ttl)
	return nil
}

func (c *InMemoryMissCache) Forget(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, missKey(email))
	return nil
}

// missKey hashes the normalized email so cache keys never carry addresses.
func missKey(email string) string {
	sum := sha256.Sum256([]byte(domain.NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// CachedDirectory short-circuits FindByEmail for emails that missed within the last ttl. Hits and
// by-id lookups always go to the wrapped directory. Cache failures never fail a lookup.
type CachedDirectory struct {
	next  IdentityDirectory
	cache MissCache
	ttl   time.Duration
}

func NewCachedDirectory(next IdentityDirectory, cache MissCache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cache, ttl: ttl}
}

func (d *CachedDirectory) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	seen, err := d.cache.Seen(ctx, email)
	if err != nil {
		slog.WarnContext(ctx, "directory miss cache read failed", "error", err.Error())
	} else if seen {
		observability.RecordDirectoryLookup(ctx, "miss_cache", "by_email", "not_found")
		return nil, domain.ErrIdentityNotFound
	}

	identity, err := d.next.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		if cerr := d.cache.Remember(ctx, email, d.ttl); cerr != nil {
			slog.WarnContext(ctx, "directory miss cache write failed", "error", cerr.Error())
		}
	}
	return identity, err
}

func (d *CachedDirectory) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	return d.next.FindByID(ctx, id)
}
