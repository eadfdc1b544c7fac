package service

import "errors"

// Error kinds surfaced to callers. Each one maps to a stable code at the HTTP layer.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotFound      = errors.New("not found")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrConfiguration = errors.New("service misconfigured")
	ErrStorage       = errors.New("storage failure")
	ErrInternal      = errors.New("internal failure")
)

// ErrorCode returns the stable wire code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrConfiguration):
		return "CONFIGURATION_ERROR"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
