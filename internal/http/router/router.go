package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/portal-credential-exchange/internal/health"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/handler"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/middleware"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/response"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
)

type Dependencies struct {
	AuthHandler          *handler.AuthHandler
	UserHandler          *handler.UserHandler
	AdminHandler         *handler.AdminHandler
	SessionManager       *security.SessionManager
	IssuerAPIKey         string
	CORSOrigins          []string
	IssueRateLimitRPM    int
	ExchangeRateLimitRPM int
	IssueRateLimiter     RateLimiterFunc
	ExchangeRateLimiter  RateLimiterFunc
	Readiness            *health.ProbeRunner
	EnableOTelHTTP       bool
}

type RateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(64 << 10))

	issueLimiter := dep.IssueRateLimiter
	if issueLimiter == nil {
		issueLimiter = middleware.NewRateLimiter(dep.IssueRateLimitRPM, time.Minute, "issue").Middleware()
	}
	exchangeLimiter := dep.ExchangeRateLimiter
	if exchangeLimiter == nil {
		exchangeLimiter = middleware.NewRateLimiter(dep.ExchangeRateLimitRPM, time.Minute, "exchange").Middleware()
	}
	requireSession := middleware.AuthMiddleware(dep.SessionManager)
	requireAPIKey := middleware.APIKeyMiddleware(dep.IssuerAPIKey)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.JSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unready", "checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(issueLimiter, requireAPIKey).Post("/magic-link", dep.AuthHandler.IssueMagicLink)
			r.With(exchangeLimiter).Post("/magic-link/exchange", dep.AuthHandler.ExchangeMagicLink)
			r.With(requireSession).Post("/logout", dep.AuthHandler.Logout)
		})

		r.With(requireSession).Get("/me", dep.UserHandler.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAPIKey)
			r.Get("/sessions/{identity_id}", dep.AdminHandler.GetSession)
			r.Delete("/sessions/{identity_id}", dep.AdminHandler.DeleteSession)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
