package handler

import (
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
	"github.com/sandeepkv93/portal-credential-exchange/internal/service"
)

var publicMessages = map[string]string{
	"BAD_REQUEST":         "invalid request",
	"NOT_FOUND":           "not found",
	"INVALID_TOKEN":       "invalid or expired link",
	"CONFIGURATION_ERROR": "service is not configured",
	"STORAGE_ERROR":       "could not save the request, try again",
	"INTERNAL_ERROR":      "something went wrong, try again",
}

// writeServiceError maps err to its code and a fixed message. Error detail goes to the log only.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := service.ErrorCode(err)
	status := response.StatusForCode(code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "code", code, "error", err.Error(), "request_id", response.RequestID(r))
	}
	response.Error(w, r, status, code, publicMessages[code])
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", message)
}
