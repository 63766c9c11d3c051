package apisign

import (
	"context"
	"encoding/json"
	"net/http"

	"apisign/internal/common/logging"
)

// ErrorHandler renders a verification failure.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware verifies every request before handing it to next. Rejected
// requests go to onError; a nil onError writes {"<ErrorMsgKey>": message}
// with the status from StatusCode. On success the verified client id is
// stored in the request context.
func Middleware(v *Verifier, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = JSONErrorHandler(v.settings.ErrorMsgKey)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr, err := v.verify(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			if sr != nil {
				ctx := context.WithValue(r.Context(), logging.AppIDKey, sr.AppID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AppIDFromContext returns the client id of a request that passed signature
// verification. Exempt requests have none.
func AppIDFromContext(ctx context.Context) (string, bool) {
	appID, ok := ctx.Value(logging.AppIDKey).(string)
	return appID, ok && appID != ""
}

// JSONErrorHandler writes failures as a one-field JSON object keyed by msgKey.
func JSONErrorHandler(msgKey string) ErrorHandler {
	if msgKey == "" {
		msgKey = DefaultErrorMsgKey
	}
	return func(w http.ResponseWriter, _ *http.Request, err error) {
		status := StatusCode(err)
		msg := Message(err)
		if status == http.StatusInternalServerError {
			msg = http.StatusText(status)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{msgKey: msg})
	}
}
