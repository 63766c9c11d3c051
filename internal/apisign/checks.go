package apisign

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RequestIDChecker decides whether a request id may be used. A replay
// guard would remember ids for the freshness window and reject repeats.
type RequestIDChecker interface {
	CheckRequestID(ctx context.Context, appID, requestID string) error
}

// AppIDChecker decides whether a known client is allowed through.
type AppIDChecker interface {
	CheckAppID(ctx context.Context, appID string) error
}

// TokenValidator checks the access token presented alongside a signature.
type TokenValidator interface {
	ValidateToken(ctx context.Context, appID, token string) error
}

// NopRequestIDChecker accepts every request id. It does not protect against
// replayed requests.
type NopRequestIDChecker struct{}

// CheckRequestID implements RequestIDChecker.
func (NopRequestIDChecker) CheckRequestID(context.Context, string, string) error { return nil }

// NopAppIDChecker accepts every client that has a secret.
type NopAppIDChecker struct{}

// CheckAppID implements AppIDChecker.
func (NopAppIDChecker) CheckAppID(context.Context, string) error { return nil }

// JWTTokenValidator accepts HS256 tokens signed with a shared key. When the
// token names a subject it must be the calling client.
type JWTTokenValidator struct {
	key    []byte
	leeway time.Duration
}

// NewJWTTokenValidator returns a validator for tokens signed with key.
func NewJWTTokenValidator(key []byte, leeway time.Duration) (*JWTTokenValidator, error) {
	if len(key) == 0 {
		return nil, ErrConfiguration.Derive("access token key is empty")
	}
	return &JWTTokenValidator{key: key, leeway: leeway}, nil
}

// ValidateToken implements TokenValidator.
func (v *JWTTokenValidator) ValidateToken(_ context.Context, appID, token string) error {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil {
		return ErrInvalidAccessToken.Derive("invalid access token").WithCause(err).WithContext("app_id", appID)
	}
	if !parsed.Valid {
		return ErrInvalidAccessToken.Derive("invalid access token").WithContext("app_id", appID)
	}
	if claims.Subject != "" && claims.Subject != appID {
		return ErrInvalidAccessToken.Derive("access token issued to another client").
			WithContext("app_id", appID).
			WithContext("subject", claims.Subject)
	}
	return nil
}

// IssueAccessToken signs an HS256 token for appID valid for ttl. It is the
// counterpart of JWTTokenValidator for clients and tests.
func IssueAccessToken(key []byte, appID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
