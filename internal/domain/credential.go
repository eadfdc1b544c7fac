package domain

import "time"

const (
	MagicLinkKeyPrefix = "magic_link:"
	SessionKeyPrefix   = "session:"
)

// MagicLinkRecord is the value stored under magic_link:<token>.
type MagicLinkRecord struct {
	IdentityID string    `json:"identityId"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// Expired reports whether the record can no longer be exchanged at now.
func (r MagicLinkRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SessionRecord is the value stored under session:<identityId>. It is bookkeeping only:
// nothing consults it when a credential is verified.
type SessionRecord struct {
	Credential string    `json:"credential"`
	Email      string    `json:"email"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func MagicLinkKey(token string) string { return MagicLinkKeyPrefix + token }

func SessionKey(identityID string) string { return SessionKeyPrefix + identityID }
