package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"apisign/internal/apisign"
	"apisign/internal/common/errors"
	"apisign/internal/common/logging"
)

type Limiter struct {
	backend Backend
	config  *Config
	logger  logging.Logger
}

type Config struct {
	DefaultLimit  int           `json:"default_limit"`
	DefaultWindow time.Duration `json:"default_window"`
	Enabled       bool          `json:"enabled"`
}

type RateLimit struct {
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"window"`
	Remaining int           `json:"remaining"`
	Allowed   bool          `json:"allowed"`
	ResetTime time.Time     `json:"reset_time"`
}

// Backend counts hits per key. Allow records one hit and reports how many
// the key has used in the current window, this one included.
type Backend interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, used int, err error)
}

// ErrLimitExceeded matches the error handed to a LimitedHandler.
var ErrLimitExceeded = errors.RateLimitError("client").WithCode("RATE_LIMITED")

// LimitedHandler writes the response for a request over its limit.
type LimitedHandler func(w http.ResponseWriter, r *http.Request, err error)

// WriteLimited renders err as {"msg": "Rate limit exceeded"} with status 429.
func WriteLimited(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"msg": "Rate limit exceeded"})
}

// KeyFunc derives the rate limit key of a request. An empty key is not
// limited.
type KeyFunc func(*http.Request) string

func NewLimiter(backend Backend, config *Config, logger logging.Logger) *Limiter {
	if config == nil {
		config = &Config{
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Enabled:       true,
		}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Limiter{
		backend: backend,
		config:  config,
		logger:  logger,
	}
}

func (l *Limiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimit, error) {
	if !l.config.Enabled || l.backend == nil {
		return &RateLimit{
			Limit:     limit,
			Window:    window,
			Remaining: limit,
			Allowed:   true,
			ResetTime: time.Now().Add(window),
		}, nil
	}

	allowed, used, err := l.backend.Allow(ctx, fmt.Sprintf("rate_limit:%s", key), limit, window)
	if err != nil {
		return nil, errors.InternalError("failed to check rate limit", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimit{
		Limit:     limit,
		Window:    window,
		Remaining: remaining,
		Allowed:   allowed,
		ResetTime: time.Now().Add(window),
	}, nil
}

func (l *Limiter) CheckDefaultLimit(ctx context.Context, key string) (*RateLimit, error) {
	return l.CheckLimit(ctx, key, l.config.DefaultLimit, l.config.DefaultWindow)
}

// HTTPMiddleware limits requests per key. Backend failures let the request
// through. A nil onLimited uses WriteLimited.
func (l *Limiter) HTTPMiddleware(keyFunc KeyFunc, onLimited LimitedHandler) func(http.Handler) http.Handler {
	if onLimited == nil {
		onLimited = WriteLimited
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimit, err := l.CheckDefaultLimit(r.Context(), key)
			if err != nil {
				l.logger.WithContext(r.Context()).Error("Rate limit check failed", err, logging.String("key", key))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rateLimit.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rateLimit.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rateLimit.ResetTime.Unix(), 10))

			if !rateLimit.Allowed {
				l.logger.WithContext(r.Context()).Warn("Rate limit exceeded", logging.String("key", key))
				w.Header().Set("Retry-After", strconv.Itoa(int(rateLimit.Window.Seconds())))
				onLimited(w, r, ErrLimitExceeded.Derive("rate limit exceeded for "+key).
					WithContext("limit", rateLimit.Limit).
					WithContext("window", rateLimit.Window.String()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AppIDKey limits per verified client. Requests that skipped verification
// are not limited.
func AppIDKey(r *http.Request) string {
	appID, ok := apisign.AppIDFromContext(r.Context())
	if !ok {
		return ""
	}
	return "app:" + appID
}
