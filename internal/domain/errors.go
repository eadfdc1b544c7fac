package domain

import "errors"

// Collaborator errors.
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrKeyNotFound      = errors.New("key not found")
)

// ErrNotConfigured is returned by a collaborator client that is missing its credentials.
var ErrNotConfigured = errors.New("collaborator not configured")
