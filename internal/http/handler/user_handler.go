package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/http/middleware"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler { return &UserHandler{} }

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CompanyID string    `json:"company_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me answers from the verified credential alone.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
		return
	}
	response.JSON(w, r, http.StatusOK, meResponse{
		ID:        subject.Subject,
		Email:     subject.Email,
		Name:      subject.Name,
		CompanyID: subject.CompanyID,
		ExpiresAt: subject.ExpiresAt,
	})
}
