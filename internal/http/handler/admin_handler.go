package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/service"
)

type AdminHandler struct {
	sessions *service.SessionService
}

func NewAdminHandler(sessions *service.SessionService) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	identityID := strings.TrimSpace(chi.URLParam(r, "identity_id"))
	view, err := h.sessions.Get(r.Context(), identityID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

func (h *AdminHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	identityID := strings.TrimSpace(chi.URLParam(r, "identity_id"))
	if err := h.sessions.Forget(r.Context(), identityID); err != nil {
		observability.Audit(r, "admin.session.delete", "outcome", "failure", "reason", strings.ToLower(service.ErrorCode(err)))
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.session.delete", "outcome", "success", "identity_id", identityID)
	response.NoContent(w)
}
