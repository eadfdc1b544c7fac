package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "session"

var ErrSigningSecretMissing = errors.New("signing secret not configured")

type SessionClaims struct {
	TokenType string `json:"token_type"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// SessionSubject is the verified view of a session credential.
type SessionSubject struct {
	Subject   string
	Email     string
	Name      string
	CompanyID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

type SessionInput struct {
	Subject   string
	Email     string
	Name      string
	CompanyID string
}

type SessionManager struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func NewSessionManager(issuer, audience, secret string) *SessionManager {
	return &SessionManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for iat/exp; tests use it to mint credentials in the past.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

func (m *SessionManager) Configured() bool {
	return len(m.secret) > 0
}

func (m *SessionManager) Sign(in SessionInput, ttl time.Duration) (string, time.Time, error) {
	if !m.Configured() {
		return "", time.Time{}, ErrSigningSecretMissing
	}
	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := SessionClaims{
		TokenType: sessionTokenType,
		Email:     in.Email,
		Name:      in.Name,
		CompanyID: in.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   in.Subject,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *SessionManager) Verify(raw string) (*SessionSubject, error) {
	if !m.Configured() {
		return nil, ErrSigningSecretMissing
	}
	return verify(raw, m.secret, m.issuer, m.audience, m.now)
}

// Verify checks a session credential offline: signature, expiry, issuer and audience.
// It has no side effects and needs nothing but the shared secret.
func Verify(raw, secret, issuer, audience string) (*SessionSubject, error) {
	return verify(raw, []byte(secret), issuer, audience, time.Now)
}

func verify(raw string, secret []byte, issuer, audience string, now func() time.Time) (*SessionSubject, error) {
	claims := &SessionClaims{}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithTimeFunc(now)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != sessionTokenType {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	subject := &SessionSubject{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		CompanyID: claims.CompanyID,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		subject.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Time
	}
	return subject, nil
}
