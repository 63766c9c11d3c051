// Package handlers provides the HTTP endpoints served next to the signing
// middleware: an open health check and a few protected diagnostics that
// show what the verifier established about a caller.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"apisign/internal/apisign"
	"apisign/internal/circuitbreaker"
	"apisign/internal/common/logging"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// BreakerReporter exposes the counters of a circuit breaker.
type BreakerReporter interface {
	Stats() circuitbreaker.Stats
}

type Handlers struct {
	settings *apisign.Settings
	checks   map[string]HealthChecker
	breakers map[string]BreakerReporter
	logger   logging.Logger
}

// New builds the handlers. checks maps a component name, such as "redis",
// to its health probe; nil entries are skipped.
func New(settings *apisign.Settings, checks map[string]HealthChecker, logger logging.Logger) *Handlers {
	if settings == nil {
		settings = apisign.DefaultSettings()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	active := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &Handlers{
		settings: settings,
		checks:   active,
		breakers: map[string]BreakerReporter{},
		logger:   logger,
	}
}

// ReportBreaker adds b to the health report under name. An open breaker
// marks the service degraded.
func (h *Handlers) ReportBreaker(name string, b BreakerReporter) {
	if b != nil {
		h.breakers[name] = b
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteSignError renders a verification failure as {msgKey: message} with
// 403 for expired requests and 401 for every other signing failure.
func WriteSignError(w http.ResponseWriter, err error, msgKey string) {
	apisign.JSONErrorHandler(msgKey)(w, nil, err)
}

// SignError is an apisign.ErrorHandler using the configured message key.
func (h *Handlers) SignError(w http.ResponseWriter, _ *http.Request, err error) {
	WriteSignError(w, err, h.settings.ErrorMsgKey)
}

// RateLimited is a ratelimit.LimitedHandler that answers 429 in the same
// JSON shape as signing failures.
func (h *Handlers) RateLimited(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithContext(r.Context()).Debug("Rate limited", logging.Err(err))
	writeJSON(w, http.StatusTooManyRequests, map[string]string{h.settings.ErrorMsgKey: "Rate limit exceeded"})
}

// HealthCheck reports the process and each registered dependency. Any
// unhealthy dependency turns the response into a 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"location":  h.settings.Location,
	}

	code := http.StatusOK
	for name, c := range h.checks {
		if err := c.Health(r.Context()); err != nil {
			h.logger.Warn("Health check failed", logging.String("component", name), logging.Err(err))
			status[name+"_status"] = "unhealthy"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name+"_status"] = "healthy"
	}

	if len(h.breakers) > 0 {
		breakers := make(map[string]circuitbreaker.Stats, len(h.breakers))
		for name, b := range h.breakers {
			stats := b.Stats()
			breakers[name] = stats
			if stats.State == circuitbreaker.StateOpen.String() {
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		status["circuit_breakers"] = breakers
	}

	writeJSON(w, code, status)
}

// Whoami returns the verified client id of the caller.
func (h *Handlers) Whoami(w http.ResponseWriter, r *http.Request) {
	appID, ok := apisign.AppIDFromContext(r.Context())
	if !ok {
		WriteSignError(w, apisign.ErrNoAppID.Derive("request was not verified"), h.settings.ErrorMsgKey)
		return
	}

	resp := map[string]string{"app_id": appID}
	if id, ok := r.Context().Value(logging.RequestIDKey).(string); ok {
		resp["correlation_id"] = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// echoLimit caps how much of the body Echo returns.
const echoLimit = 64 << 10

// Echo returns the caller's method, path and body. The body is the one the
// verifier already read, so this also shows it is still available to
// handlers.
func (h *Handlers) Echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, echoLimit))
	if err != nil {
		h.logger.Error("Failed to read request body", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{h.settings.ErrorMsgKey: "unreadable body"})
		return
	}

	appID, _ := apisign.AppIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app_id":       appID,
		"method":       r.Method,
		"path":         r.URL.Path,
		"content_type": r.Header.Get("Content-Type"),
		"body":         string(body),
	})
}
