package handler

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/http/middleware"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/service"
)

type AuthHandler struct {
	credentials *service.CredentialService
	sessions    *service.SessionService
}

func NewAuthHandler(credentials *service.CredentialService, sessions *service.SessionService) *AuthHandler {
	return &AuthHandler{credentials: credentials, sessions: sessions}
}

type issueMagicLinkRequest struct {
	Email          string   `json:"email"`
	ExpiresInHours *float64 `json:"expiresInHours,omitempty"`
}

type issueMagicLinkResponse struct {
	MagicLink string    `json:"magic_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type exchangeResponse struct {
	AccessToken string              `json:"access_token"`
	TokenType   string              `json:"token_type"`
	ExpiresIn   int64               `json:"expires_in"`
	User        service.SessionUser `json:"user"`
}

func (h *AuthHandler) IssueMagicLink(w http.ResponseWriter, r *http.Request) {
	var req issueMagicLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		observability.Audit(r, "magic_link.issue", "outcome", "rejected", "reason", "bad_body")
		badRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		observability.Audit(r, "magic_link.issue", "outcome", "rejected", "reason", "missing_email")
		badRequest(w, r, "email is required")
		return
	}
	ttl := h.credentials.DefaultTTL()
	if req.ExpiresInHours != nil {
		var ok bool
		if ttl, ok = hoursToTTL(*req.ExpiresInHours, h.credentials.MaxTTL()); !ok {
			observability.Audit(r, "magic_link.issue", "outcome", "rejected", "reason", "bad_ttl")
			badRequest(w, r, "expiresInHours out of range")
			return
		}
	}

	res, err := h.credentials.IssueMagicLink(r.Context(), req.Email, ttl)
	if err != nil {
		observability.Audit(r, "magic_link.issue", "outcome", "failure", "reason", strings.ToLower(service.ErrorCode(err)))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "magic_link.issue", "outcome", "success", "expires_at", res.ExpiresAt)
	response.JSON(w, r, http.StatusCreated, issueMagicLinkResponse{MagicLink: res.Link, ExpiresAt: res.ExpiresAt})
}

// hoursToTTL accepts fractional hours in (0, max]. The bound is checked on the float so large
// inputs cannot wrap when converted to a Duration.
func hoursToTTL(hours float64, max time.Duration) (time.Duration, bool) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0, false
	}
	if hours > max.Hours() {
		return 0, false
	}
	ttl := time.Duration(hours * float64(time.Hour))
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func (h *AuthHandler) ExchangeMagicLink(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		observability.Audit(r, "magic_link.exchange", "outcome", "rejected", "reason", "bad_body")
		badRequest(w, r, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		observability.Audit(r, "magic_link.exchange", "outcome", "rejected", "reason", "missing_token")
		badRequest(w, r, "token is required")
		return
	}

	res, err := h.credentials.ExchangeMagicLink(r.Context(), req.Token)
	if err != nil {
		observability.Audit(r, "magic_link.exchange", "outcome", "failure", "reason", strings.ToLower(service.ErrorCode(err)))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "magic_link.exchange", "outcome", "success", "identity_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, exchangeResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
		User:        res.User,
	})
}

// Logout drops the bookkeeping record. The credential itself stays valid until it expires;
// clients discard it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
		return
	}
	if err := h.sessions.Forget(r.Context(), subject.Subject); err != nil {
		observability.Audit(r, "auth.logout", "outcome", "failure", "reason", strings.ToLower(service.ErrorCode(err)))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "outcome", "success", "identity_id", subject.Subject)
	response.NoContent(w)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after json body")
	}
	return nil
}
