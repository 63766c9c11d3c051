package apisign

import (
	"crypto/hmac"
	"net/http"
	"time"

	"apisign/internal/common/errors"
	"apisign/internal/common/logging"
)

// Verifier runs the verification pipeline for inbound requests. It is safe
// for concurrent use: nothing it holds is written after construction.
type Verifier struct {
	settings  Settings
	resolver  CredentialResolver
	logger    logging.Logger
	now       func() time.Time
	digester  Digester
	requestID RequestIDChecker
	appID     AppIDChecker
	token     TokenValidator
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithClock replaces the wall clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithDigester replaces the digester chosen from Settings.Algorithm.
func WithDigester(d Digester) Option {
	return func(v *Verifier) { v.digester = d }
}

// WithRequestIDChecker installs a request id check, such as a replay guard.
func WithRequestIDChecker(c RequestIDChecker) Option {
	return func(v *Verifier) { v.requestID = c }
}

// WithAppIDChecker installs a client allow check.
func WithAppIDChecker(c AppIDChecker) Option {
	return func(v *Verifier) { v.appID = c }
}

// WithTokenValidator installs the access token validator used when
// Settings.RequireToken is set.
func WithTokenValidator(t TokenValidator) Option {
	return func(v *Verifier) { v.token = t }
}

// NewVerifier creates a verifier over a private copy of settings. Empty
// settings fields take their defaults.
func NewVerifier(settings *Settings, resolver CredentialResolver, logger logging.Logger, opts ...Option) (*Verifier, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	s := Settings{}
	if settings != nil {
		s = *settings
		if settings.ExemptMethods != nil {
			s.ExemptMethods = append(make([]string, 0, len(settings.ExemptMethods)), settings.ExemptMethods...)
		}
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, ErrConfiguration.Derive(err.Error()).WithCause(err)
	}

	digester, known := DigesterFor(s.Algorithm)
	if !known {
		logger.Warn("Unsupported sign algorithm, falling back to MD5",
			logging.String("algorithm", s.Algorithm))
	}

	v := &Verifier{
		settings:  s,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
		digester:  digester,
		requestID: NopRequestIDChecker{},
		appID:     NopAppIDChecker{},
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.resolver == nil {
		v.resolver = SelectResolver(nil, nil)
	}
	if s.RequireToken && v.token == nil {
		return nil, ErrConfiguration.Derive("access tokens are required but no token validator is configured")
	}
	return v, nil
}

// Settings returns a copy of the settings in effect.
func (v *Verifier) Settings() Settings {
	s := v.settings
	s.ExemptMethods = append(make([]string, 0, len(v.settings.ExemptMethods)), v.settings.ExemptMethods...)
	return s
}

// Extract reads and presence-checks the signing fields of r.
func (v *Verifier) Extract(r *http.Request) (*SignedRequest, error) {
	return Extract(r, &v.settings)
}

// Verify authenticates r. It returns nil when the request may proceed and
// otherwise exactly one error matching a failure kind of this package.
func (v *Verifier) Verify(r *http.Request) error {
	_, err := v.verify(r)
	return err
}

// verify returns the extracted request on success so the middleware can
// publish the verified client id. Exempt and disabled passes return nil.
func (v *Verifier) verify(r *http.Request) (*SignedRequest, error) {
	if v.settings.DisableSign || v.settings.IsExempt(r.Method) {
		return nil, nil
	}

	sr, err := v.Extract(r)
	if err != nil {
		v.reject(r, nil, err)
		return nil, err
	}

	if err := v.check(r, sr); err != nil {
		v.reject(r, sr, err)
		return nil, err
	}

	v.logger.WithContext(r.Context()).Debug("Request signature verified",
		logging.String("app_id", sr.AppID),
		logging.String("request_id", sr.RequestID),
	)
	return sr, nil
}

func (v *Verifier) check(r *http.Request, sr *SignedRequest) error {
	ctx := r.Context()

	if sr.timestampNotString {
		return ErrTimestampFormat.Derive("timestamp must be a string").WithContext("timestamp", sr.Timestamp)
	}
	if _, err := CheckTimestamp(sr.Timestamp, v.now(), v.settings.TimestampExpiration); err != nil {
		return err
	}

	if err := v.requestID.CheckRequestID(ctx, sr.AppID, sr.RequestID); err != nil {
		return err
	}

	if v.settings.RequireToken {
		if sr.AccessToken == "" {
			return ErrNoAccessToken.Derive("Missing " + v.settings.AccessTokenName)
		}
		if err := v.token.ValidateToken(ctx, sr.AppID, sr.AccessToken); err != nil {
			return err
		}
	}

	if err := v.appID.CheckAppID(ctx, sr.AppID); err != nil {
		return err
	}

	secret, err := v.resolver.ResolveSecret(ctx, sr.AppID)
	if err != nil {
		return err
	}

	expected := ComputeSignature(sr.Params(&v.settings), secret, v.digester)
	if !hmac.Equal([]byte(expected), []byte(sr.Signature)) {
		return ErrInvalidSign.Derive("Invalid sign").
			WithContext("app_id", sr.AppID).
			WithContext("request_id", sr.RequestID)
	}
	return nil
}

func (v *Verifier) reject(r *http.Request, sr *SignedRequest, err error) {
	fields := []logging.Field{
		logging.String("kind", errors.GetCode(err)),
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
	}
	if sr != nil {
		fields = append(fields,
			logging.String("app_id", sr.AppID),
			logging.String("request_id", sr.RequestID),
		)
	}

	logger := v.logger.WithContext(r.Context())
	if errors.IsType(err, errors.ErrTypeConfig) {
		logger.Error("Request signing misconfigured", err, fields...)
		return
	}
	fields = append(fields, logging.String("reason", Message(err)))
	logger.Warn("Request signature rejected", fields...)
}
