package apisign

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Location selects where the signing fields are read from.
type Location string

const (
	LocationQueryString Location = "query_string"
	LocationHeaders     Location = "headers"
	LocationJSON        Location = "json"
	LocationForm        Location = "form"
)

// Valid reports whether l is one of the four supported locations.
func (l Location) Valid() bool {
	switch l {
	case LocationQueryString, LocationHeaders, LocationJSON, LocationForm:
		return true
	}
	return false
}

// Default settings values.
const (
	DefaultAppIDName         = "x-app-id"
	DefaultRequestIDName     = "x-request-id"
	DefaultSignatureName     = "x-sign"
	DefaultTimestampName     = "timestamp"
	DefaultDataName          = "x-data"
	DefaultAccessTokenName   = "x-access-token"
	DefaultAlgorithm         = "MD5"
	DefaultErrorMsgKey       = "msg"
	DefaultTimestampValidity = 30 * time.Second
)

// Settings is the read-only verification configuration. Build it once at
// startup and share it; the verifier never mutates it.
type Settings struct {
	Location Location `json:"location"`

	AppIDName       string `json:"app_id_name"`
	RequestIDName   string `json:"request_id_name"`
	SignatureName   string `json:"signature_name"`
	TimestampName   string `json:"timestamp_name"`
	DataName        string `json:"data_name"`
	AccessTokenName string `json:"access_token_name"`

	// Algorithm is the declared digest name. Only MD5 is wired; see DigesterFor.
	Algorithm string `json:"algorithm"`

	// TimestampExpiration is how long after its timestamp a request stays valid.
	TimestampExpiration time.Duration `json:"timestamp_expiration"`

	// DisableSign turns the whole pipeline into a pass-through. The zero value
	// keeps signing required.
	DisableSign bool `json:"disable_sign"`

	// RequireToken additionally demands a valid access token.
	RequireToken bool `json:"require_token"`

	// ExemptMethods bypass verification entirely.
	ExemptMethods []string `json:"exempt_methods"`

	// ErrorMsgKey names the message field in error response bodies.
	ErrorMsgKey string `json:"error_msg_key"`
}

// DefaultSettings returns the settings used when nothing is overridden.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.SetDefaults()
	return s
}

// SetDefaults fills every empty field with its default value.
func (s *Settings) SetDefaults() {
	if s.Location == "" {
		s.Location = LocationQueryString
	}
	if s.AppIDName == "" {
		s.AppIDName = DefaultAppIDName
	}
	if s.RequestIDName == "" {
		s.RequestIDName = DefaultRequestIDName
	}
	if s.SignatureName == "" {
		s.SignatureName = DefaultSignatureName
	}
	if s.TimestampName == "" {
		s.TimestampName = DefaultTimestampName
	}
	if s.DataName == "" {
		s.DataName = DefaultDataName
	}
	if s.AccessTokenName == "" {
		s.AccessTokenName = DefaultAccessTokenName
	}
	if s.Algorithm == "" {
		s.Algorithm = DefaultAlgorithm
	}
	if s.TimestampExpiration == 0 {
		s.TimestampExpiration = DefaultTimestampValidity
	}
	if s.ExemptMethods == nil {
		s.ExemptMethods = []string{http.MethodOptions}
	}
	if s.ErrorMsgKey == "" {
		s.ErrorMsgKey = DefaultErrorMsgKey
	}
}

// Validate checks the settings for values the pipeline cannot work with.
func (s *Settings) Validate() error {
	if !s.Location.Valid() {
		return fmt.Errorf("unsupported sign location %q", s.Location)
	}
	if s.TimestampExpiration < time.Second {
		return fmt.Errorf("timestamp expiration must be at least one second, got %s", s.TimestampExpiration)
	}

	names := map[string]string{
		"app id":     s.AppIDName,
		"request id": s.RequestIDName,
		"signature":  s.SignatureName,
		"timestamp":  s.TimestampName,
		"data":       s.DataName,
	}
	seen := make(map[string]string, len(names))
	for label, name := range names {
		if name == "" {
			return fmt.Errorf("%s field name is empty", label)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s fields share the name %q", other, label, name)
		}
		seen[name] = label
	}
	return nil
}

// IsExempt reports whether requests with this method skip verification.
func (s *Settings) IsExempt(method string) bool {
	for _, m := range s.ExemptMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// expirationSeconds is the freshness window in whole seconds.
func (s *Settings) expirationSeconds() int64 {
	return int64(s.TimestampExpiration / time.Second)
}
