package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
)

type contextKey string

const (
	SubjectContextKey contextKey = "session_subject"
)

// AuthMiddleware admits requests carrying a valid session credential as a bearer token.
func AuthMiddleware(sessions *security.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
				return
			}
			if sessions == nil || !sessions.Configured() {
				observability.RecordAccessTokenValidation(r.Context(), "not_configured")
				response.Error(w, r, http.StatusServiceUnavailable, "CONFIGURATION_ERROR", "service is not configured")
				return
			}
			subject, err := sessions.Verify(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), SubjectContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SubjectFromContext(ctx context.Context) (*security.SessionSubject, bool) {
	s, ok := ctx.Value(SubjectContextKey).(*security.SessionSubject)
	return s, ok
}

// APIKeyMiddleware guards operator routes with the shared issuer key, read from X-API-Key or a
// bearer token. An empty key disables the routes.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	key = strings.TrimSpace(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				observability.Audit(r, "api_key.check", "outcome", "rejected", "reason", "not_configured")
				response.Error(w, r, http.StatusServiceUnavailable, "CONFIGURATION_ERROR", "service is not configured")
				return
			}
			presented := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if presented == "" {
				presented = security.BearerToken(r)
			}
			if presented == "" || !security.ConstantTimeEqual(presented, key) {
				observability.Audit(r, "api_key.check", "outcome", "rejected", "reason", "mismatch")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
