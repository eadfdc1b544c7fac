package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/domain"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
)

const maxMagicTokenLength = 256

type CredentialServiceConfig struct {
	PublicBaseURL       string
	DefaultTTL          time.Duration
	MaxTTL              time.Duration
	SessionTTL          time.Duration
	CollaboratorTimeout time.Duration
}

type IssueResult struct {
	Link      string
	Token     string
	ExpiresAt time.Time
}

type SessionUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CompanyID string `json:"company_id,omitempty"`
}

type ExchangeResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	ExpiresAt   time.Time
	User        SessionUser
}

// CredentialService issues single-use magic links and exchanges them for session credentials.
type CredentialService struct {
	directory IdentityDirectory
	store     KeyValueStore
	sessions  *SessionService
	signer    *security.SessionManager
	cfg       CredentialServiceConfig
	now       func() time.Time
}

func NewCredentialService(directory IdentityDirectory, store KeyValueStore, sessions *SessionService, signer *security.SessionManager, cfg CredentialServiceConfig) *CredentialService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 168 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &CredentialService{
		directory: directory,
		store:     store,
		sessions:  sessions,
		signer:    signer,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *CredentialService) DefaultTTL() time.Duration { return s.cfg.DefaultTTL }

func (s *CredentialService) MaxTTL() time.Duration { return s.cfg.MaxTTL }

// IssueMagicLink stores a fresh token for the identity behind email. A zero ttl is accepted and
// produces a token that is already expired.
func (s *CredentialService) IssueMagicLink(ctx context.Context, email string, ttl time.Duration) (*IssueResult, error) {
	ctx, span := observability.StartSpan(ctx, "credential.issue_magic_link")
	defer span.End()
	res, err := s.issue(ctx, email, ttl)
	observability.RecordMagicLinkIssue(ctx, outcome(err))
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *CredentialService) issue(ctx context.Context, email string, ttl time.Duration) (*IssueResult, error) {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return nil, fmt.Errorf("%w: email is required", ErrBadRequest)
	}
	if ttl < 0 || ttl > s.cfg.MaxTTL {
		return nil, fmt.Errorf("%w: ttl must be between 0 and %s", ErrBadRequest, s.cfg.MaxTTL)
	}
	if s.cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("%w: public base url missing", ErrConfiguration)
	}
	if s.directory == nil || s.store == nil {
		return nil, fmt.Errorf("%w: collaborators missing", ErrConfiguration)
	}

	identity, err := s.findIdentity(ctx, "by_email", func(ctx context.Context) (*domain.Identity, error) {
		return s.directory.FindByEmail(ctx, normalized)
	})
	if err != nil {
		return nil, err
	}

	token, err := security.NewMagicToken()
	if err != nil {
		return nil, fmt.Errorf("%w: generate token: %w", ErrInternal, err)
	}
	now := s.now().UTC()
	rec := domain.MagicLinkRecord{
		IdentityID: identity.ID,
		Email:      identity.Email,
		ExpiresAt:  now.Add(ttl),
		IssuedAt:   now,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %w", ErrInternal, err)
	}

	storeCtx, cancel := withTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	if err := s.store.Set(storeCtx, domain.MagicLinkKey(token), payload); err != nil {
		return nil, classifyCollaboratorErr(ErrStorage, "store magic link", err)
	}

	return &IssueResult{
		Link:      s.cfg.PublicBaseURL + "/auth/magic?token=" + url.QueryEscape(token),
		Token:     token,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// ExchangeMagicLink redeems token for a signed session credential. Absent, expired and already
// consumed tokens all fail with ErrInvalidToken. The store's Take is the commit point: when
// several requests race on one token only the caller that removes the record succeeds.
func (s *CredentialService) ExchangeMagicLink(ctx context.Context, token string) (*ExchangeResult, error) {
	ctx, span := observability.StartSpan(ctx, "credential.exchange_magic_link")
	defer span.End()
	res, err := s.exchange(ctx, token)
	observability.RecordMagicLinkExchange(ctx, outcome(err))
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (s *CredentialService) exchange(ctx context.Context, token string) (*ExchangeResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrBadRequest)
	}
	if len(token) > maxMagicTokenLength {
		return nil, ErrInvalidToken
	}
	if s.directory == nil || s.store == nil {
		return nil, fmt.Errorf("%w: collaborators missing", ErrConfiguration)
	}
	key := domain.MagicLinkKey(token)

	rec, err := s.loadRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if rec.Expired(now) {
		s.deleteQuietly(ctx, key, "expired")
		return nil, ErrInvalidToken
	}

	identity, err := s.findIdentity(ctx, "by_id", func(ctx context.Context) (*domain.Identity, error) {
		return s.directory.FindByID(ctx, rec.IdentityID)
	})
	if err != nil {
		return nil, err
	}
	email := identity.Email
	if email == "" {
		email = rec.Email
	}

	credential, expiresAt, err := s.signer.Sign(security.SessionInput{
		Subject:   identity.ID,
		Email:     email,
		Name:      identity.Name,
		CompanyID: identity.Company(),
	}, s.cfg.SessionTTL)
	if err != nil {
		if errors.Is(err, security.ErrSigningSecretMissing) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("%w: sign credential: %w", ErrInternal, err)
	}

	// The directory lookup can outlast the link; expiry is judged at the commit point.
	now = s.now().UTC()
	if rec.Expired(now) {
		s.deleteQuietly(ctx, key, "expired")
		return nil, ErrInvalidToken
	}

	takeCtx, cancel := withTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	if _, err := s.store.Take(takeCtx, key); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, classifyCollaboratorErr(ErrInternal, "consume magic link", err)
	}

	if s.sessions != nil {
		err := s.sessions.Record(ctx, identity.ID, domain.SessionRecord{
			Credential: credential,
			Email:      email,
			IssuedAt:   now,
			ExpiresAt:  expiresAt,
		})
		if err != nil {
			slog.WarnContext(ctx, "active session record write failed", "error", err.Error())
		}
	}

	return &ExchangeResult{
		AccessToken: credential,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.SessionTTL / time.Second),
		ExpiresAt:   expiresAt,
		User: SessionUser{
			ID:        identity.ID,
			Email:     email,
			Name:      identity.Name,
			CompanyID: identity.Company(),
		},
	}, nil
}

func (s *CredentialService) loadRecord(ctx context.Context, key string) (*domain.MagicLinkRecord, error) {
	getCtx, cancel := withTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	raw, err := s.store.Get(getCtx, key)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, classifyCollaboratorErr(ErrInternal, "load magic link", err)
	}
	var rec domain.MagicLinkRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.IdentityID == "" {
		s.deleteQuietly(ctx, key, "malformed")
		return nil, ErrInvalidToken
	}
	return &rec, nil
}

func (s *CredentialService) findIdentity(ctx context.Context, strategy string, find func(context.Context) (*domain.Identity, error)) (*domain.Identity, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	identity, err := find(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strategy)
		}
		return nil, classifyCollaboratorErr(ErrInternal, "resolve identity "+strategy, err)
	}
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strategy)
	}
	return identity, nil
}

func (s *CredentialService) deleteQuietly(ctx context.Context, key, reason string) {
	delCtx, cancel := withTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	if err := s.store.Delete(delCtx, key); err != nil {
		slog.WarnContext(ctx, "magic link cleanup failed", "reason", reason, "error", err.Error())
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(ErrorCode(err))
}
