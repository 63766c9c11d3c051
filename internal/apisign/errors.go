package apisign

import (
	stderrors "errors"
	"net/http"

	"apisign/internal/common/errors"
)

// Failure kinds. Every error returned by the verifier matches exactly one of
// these with errors.Is; the host decides how to render it.
var (
	ErrConfiguration      = errors.ConfigError("credential configuration error").WithCode("CONFIGURATION")
	ErrUnknownClient      = errors.AuthError("unknown app id").WithCode("UNKNOWN_CLIENT")
	ErrNoSignKey          = errors.AuthError("missing sign key").WithCode("NO_SIGN_KEY")
	ErrNoAppID            = errors.AuthError("missing app id").WithCode("NO_APP_ID")
	ErrNoRequestID        = errors.AuthError("missing request id").WithCode("NO_REQUEST_ID")
	ErrNoSignature        = errors.AuthError("missing signature").WithCode("NO_SIGNATURE")
	ErrNoTimestamp        = errors.AuthError("missing timestamp").WithCode("NO_TIMESTAMP")
	ErrTimestampFormat    = errors.AuthError("malformed timestamp").WithCode("TIMESTAMP_FORMAT")
	ErrRequestExpired     = errors.AuthError("request expired").WithCode("REQUEST_EXPIRED")
	ErrInvalidSign        = errors.AuthError("invalid request signature").WithCode("INVALID_SIGN")
	ErrNoAccessToken      = errors.AuthError("missing access token").WithCode("NO_ACCESS_TOKEN")
	ErrInvalidAccessToken = errors.AuthError("invalid access token").WithCode("INVALID_ACCESS_TOKEN")
)

// IsSignError reports whether err is one of the failure kinds above.
func IsSignError(err error) bool {
	switch errors.GetCode(err) {
	case ErrConfiguration.Code, ErrUnknownClient.Code, ErrNoSignKey.Code,
		ErrNoAppID.Code, ErrNoRequestID.Code, ErrNoSignature.Code, ErrNoTimestamp.Code,
		ErrTimestampFormat.Code, ErrRequestExpired.Code, ErrInvalidSign.Code,
		ErrNoAccessToken.Code, ErrInvalidAccessToken.Code:
		return true
	}
	return false
}

// StatusCode maps a verification failure to an HTTP status: expired requests
// are forbidden, every other signing failure is unauthorized.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrRequestExpired):
		return http.StatusForbidden
	case IsSignError(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client facing message of a failure: the message of the
// outermost AppError, or the plain error text.
func Message(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
