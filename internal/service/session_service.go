package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
)

var ErrSessionNotFound = fmt.Errorf("%w: session record", ErrNotFound)

type SessionView struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Active     bool      `json:"active"`
}

// SessionService keeps the last credential issued per identity. The records are bookkeeping for
// operators: deleting one does not invalidate the credential, which stays valid until it expires.
type SessionService struct {
	store   KeyValueStore
	timeout time.Duration
	now     func() time.Time
}

func NewSessionService(store KeyValueStore, timeout time.Duration) *SessionService {
	return &SessionService{store: store, timeout: timeout, now: time.Now}
}

func (s *SessionService) Record(ctx context.Context, identityID string, rec domain.SessionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Set(ctx, domain.SessionKey(identityID), payload)
}

func (s *SessionService) Get(ctx context.Context, identityID string) (*SessionView, error) {
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrBadRequest)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.store.Get(ctx, domain.SessionKey(identityID))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, classifyCollaboratorErr(ErrInternal, "read session record", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode session record: %w", ErrInternal, err)
	}
	return &SessionView{
		IdentityID: identityID,
		Email:      rec.Email,
		IssuedAt:   rec.IssuedAt,
		ExpiresAt:  rec.ExpiresAt,
		Active:     s.now().Before(rec.ExpiresAt),
	}, nil
}

func (s *SessionService) Forget(ctx context.Context, identityID string) error {
	if identityID == "" {
		return fmt.Errorf("%w: identity id is required", ErrBadRequest)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Delete(ctx, domain.SessionKey(identityID)); err != nil {
		return classifyCollaboratorErr(ErrStorage, "delete session record", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classifyCollaboratorErr wraps a directory or store failure in its error kind. Timeouts are
// always internal errors; missing credentials are configuration errors.
func classifyCollaboratorErr(kind error, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		kind = ErrConfiguration
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrLockTimeout):
		kind = ErrInternal
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
