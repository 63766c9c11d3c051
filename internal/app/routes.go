package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"apisign/internal/apisign"
	"apisign/internal/common/logging"
	"apisign/internal/handlers"
	"apisign/internal/middleware"
	"apisign/internal/ratelimit"
)

// Handler builds the HTTP routes of the application.
func (app *App) Handler() http.Handler {
	checks := map[string]handlers.HealthChecker{}
	if app.RedisClient != nil {
		checks["redis"] = app.RedisClient
	}
	h := handlers.New(app.Settings, checks, app.Logger)
	if app.SecretBreaker != nil {
		h.ReportBreaker("secret_store", app.SecretBreaker)
	}

	router := mux.NewRouter()
	SetupRoutes(router, h, apisign.Middleware(app.Verifier, h.SignError), app.Limiter, app.Logger)
	return router
}

// SetupRoutes configures all HTTP routes. Everything under /api requires a
// valid request signature; the rate limiter, when set, runs after
// verification and is keyed by client id.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, signMiddleware func(http.Handler) http.Handler, limiter *ratelimit.Limiter, logger logging.Logger) {
	router.Use(middleware.CorrelationID)
	router.Use(middleware.Logging(logger))

	// Health check (no signature required)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(signMiddleware)
	if limiter != nil {
		api.Use(limiter.HTTPMiddleware(ratelimit.AppIDKey, h.RateLimited))
	}

	api.HandleFunc("/whoami", h.Whoami).Methods(http.MethodGet)
	api.HandleFunc("/echo", h.Echo).Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)
}
