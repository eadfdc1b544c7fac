package domain

import (
	"strings"
	"time"
)

// Identity is a directory principal: a client user, portal admin or service provider.
type Identity struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	CompanyID *string   `gorm:"size:64;index" json:"company_id,omitempty"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (i *Identity) Company() string {
	if i == nil || i.CompanyID == nil {
		return ""
	}
	return *i.CompanyID
}

// NormalizeEmail is the directory's comparison form for the email key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
