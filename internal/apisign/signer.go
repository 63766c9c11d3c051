package apisign

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sign computes the signature of sr with secret and stores it in
// sr.Signature. It returns the signature.
func Sign(s *Settings, sr *SignedRequest, secret string) string {
	d, _ := DigesterFor(s.Algorithm)
	sr.Signature = ComputeSignature(sr.Params(s), secret, d)
	return sr.Signature
}

// NewSignedRequest fills in a request for appID stamped with now in seconds.
func NewSignedRequest(appID, requestID string, now time.Time) *SignedRequest {
	return &SignedRequest{
		AppID:     appID,
		RequestID: requestID,
		Timestamp: strconv.FormatInt(now.Unix(), 10),
	}
}

// Fields returns the fields a client sends, signature and optional ones
// included, keyed by their configured names.
func (sr *SignedRequest) Fields(s *Settings) map[string]string {
	fields := sr.Params(s)
	fields[s.SignatureName] = sr.Signature
	if sr.AccessToken != "" {
		fields[s.AccessTokenName] = sr.AccessToken
	}
	return fields
}

// Apply writes the signed fields onto r for the configured location. Body
// locations replace the request body and set its content type.
func (sr *SignedRequest) Apply(r *http.Request, s *Settings) error {
	fields := sr.Fields(s)

	switch s.Location {
	case LocationQueryString:
		query := r.URL.Query()
		for k, v := range fields {
			query.Set(k, v)
		}
		r.URL.RawQuery = query.Encode()
	case LocationHeaders:
		for k, v := range fields {
			r.Header.Set(k, v)
		}
	case LocationJSON:
		body, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		setBody(r, body, contentTypeJSON)
	case LocationForm:
		form := url.Values{}
		for k, v := range fields {
			form.Set(k, v)
		}
		setBody(r, []byte(form.Encode()), contentTypeForm)
	default:
		return ErrConfiguration.Derive("unsupported sign location " + string(s.Location))
	}
	return nil
}

func setBody(r *http.Request, body []byte, contentType string) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	r.Header.Set("Content-Type", contentType)
}
