package apisign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"

	// maxBodyBytes caps how much of a body is buffered for extraction.
	maxBodyBytes = 10 << 20
)

type extractor func(r *http.Request, s *Settings) (*SignedRequest, error)

var extractors = map[Location]extractor{
	LocationQueryString: extractFromQuery,
	LocationHeaders:     extractFromHeaders,
	LocationJSON:        extractFromJSON,
	LocationForm:        extractFromForm,
}

// Extract reads the signing fields from the configured location and checks
// that the four required fields are present.
func Extract(r *http.Request, s *Settings) (*SignedRequest, error) {
	extract, ok := extractors[s.Location]
	if !ok {
		return nil, ErrConfiguration.Derive(fmt.Sprintf("unsupported sign location %q", s.Location))
	}

	sr, err := extract(r, s)
	if err != nil {
		return nil, err
	}
	if err := sr.checkPresence(s); err != nil {
		return nil, err
	}
	return sr, nil
}

func extractFromQuery(r *http.Request, s *Settings) (*SignedRequest, error) {
	query := r.URL.Query()
	sr := &SignedRequest{
		AppID:       query.Get(s.AppIDName),
		RequestID:   query.Get(s.RequestIDName),
		Signature:   query.Get(s.SignatureName),
		Timestamp:   query.Get(s.TimestampName),
		AccessToken: query.Get(s.AccessTokenName),
	}
	if values, ok := query[s.DataName]; ok && len(values) > 0 {
		sr.Data, sr.HasData = values[0], true
	}
	if err := dataFromJSONBody(r, s, sr); err != nil {
		return nil, err
	}
	return sr, nil
}

func extractFromHeaders(r *http.Request, s *Settings) (*SignedRequest, error) {
	sr := &SignedRequest{
		AppID:       r.Header.Get(s.AppIDName),
		RequestID:   r.Header.Get(s.RequestIDName),
		Signature:   r.Header.Get(s.SignatureName),
		Timestamp:   r.Header.Get(s.TimestampName),
		AccessToken: r.Header.Get(s.AccessTokenName),
	}
	if values := r.Header.Values(s.DataName); len(values) > 0 {
		sr.Data, sr.HasData = values[0], true
	}
	if err := dataFromJSONBody(r, s, sr); err != nil {
		return nil, err
	}
	return sr, nil
}

// dataFromJSONBody fills a missing extras field from a JSON object body. A
// body that is not JSON, or not an object, simply has no extras to offer.
func dataFromJSONBody(r *http.Request, s *Settings, sr *SignedRequest) error {
	if sr.HasData || !hasMediaType(r, contentTypeJSON) {
		return nil
	}
	body, err := PreserveRequestBody(r)
	if err != nil {
		return err
	}
	fields, err := decodeJSONObject(body)
	if err != nil {
		return nil
	}
	sr.Data, sr.HasData = fields.text(s.DataName)
	return nil
}

func extractFromJSON(r *http.Request, s *Settings) (*SignedRequest, error) {
	if !hasMediaType(r, contentTypeJSON) {
		return nil, ErrNoSignKey.Derive("Invalid content-type. Must be application/json.")
	}

	body, err := PreserveRequestBody(r)
	if err != nil {
		return nil, err
	}
	fields, err := decodeJSONObject(body)
	if err != nil {
		return nil, ErrNoSignKey.Derive("Malformed json data.")
	}

	sr := &SignedRequest{}
	sr.AppID, _ = fields.text(s.AppIDName)
	sr.RequestID, _ = fields.text(s.RequestIDName)
	sr.Signature, _ = fields.text(s.SignatureName)
	sr.Timestamp, _ = fields.text(s.TimestampName)
	sr.timestampNotString = sr.Timestamp != "" && !fields.isString(s.TimestampName)
	if !sr.complete() {
		return nil, ErrNoSignKey.Derive("Missing signing keys in json data.")
	}
	sr.Data, sr.HasData = fields.text(s.DataName)
	sr.AccessToken, _ = fields.text(s.AccessTokenName)
	return sr, nil
}

func extractFromForm(r *http.Request, s *Settings) (*SignedRequest, error) {
	if !hasMediaType(r, contentTypeForm) {
		return nil, ErrNoSignKey.Derive("Invalid content-type. Must be application/x-www-form-urlencoded.")
	}

	body, err := PreserveRequestBody(r)
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, ErrNoSignKey.Derive("Malformed form data.")
	}

	sr := &SignedRequest{
		AppID:     form.Get(s.AppIDName),
		RequestID: form.Get(s.RequestIDName),
		Signature: form.Get(s.SignatureName),
		Timestamp: form.Get(s.TimestampName),
	}
	if !sr.complete() {
		return nil, ErrNoSignKey.Derive("Missing signing keys in form data.")
	}
	if values, ok := form[s.DataName]; ok && len(values) > 0 {
		sr.Data, sr.HasData = values[0], true
	}
	sr.AccessToken = form.Get(s.AccessTokenName)
	return sr, nil
}

// complete is the parse-time bulk check used by body locations. The uniform
// per-field presence check still runs afterwards.
func (sr *SignedRequest) complete() bool {
	return sr.AppID != "" && sr.RequestID != "" && sr.Signature != "" && sr.Timestamp != ""
}

func hasMediaType(r *http.Request, want string) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == want
}

// PreserveRequestBody reads the request body and puts an identical reader
// back so downstream handlers still see the full body.
func PreserveRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, ErrNoSignKey.Derive("unreadable request body")
	}
	if len(body) > maxBodyBytes {
		return nil, ErrNoSignKey.Derive("request body too large")
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// jsonObject is a decoded JSON object body with values kept raw.
type jsonObject map[string]json.RawMessage

func decodeJSONObject(body []byte) (jsonObject, error) {
	var fields jsonObject
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("json body is not an object")
	}
	return fields, nil
}

// text returns the field as signing text: JSON strings unquoted and any
// other value as its compact JSON encoding. Empty values (null, "", 0,
// false, {} and []) count as absent.
func (o jsonObject) text(key string) (string, bool) {
	raw, ok := o[key]
	if !ok {
		return "", false
	}
	trimmed := bytes.TrimSpace(raw)
	if isEmptyJSON(trimmed) {
		return "", false
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, true
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed), true
	}
	return compact.String(), true
}

func isEmptyJSON(raw []byte) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case float64:
		return val == 0
	case string:
		return val == ""
	case map[string]interface{}:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	}
	return false
}

func (o jsonObject) isString(key string) bool {
	raw, ok := o[key]
	if !ok {
		return false
	}
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}
