package apisign

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

const completeJSON = `{"x-app-id":"c1","x-request-id":"r1","x-sign":"ABC","timestamp":"1700000000"}`

func TestExtract_JSONContentTypeGuard(t *testing.T) {
	s := settingsAt(LocationJSON)

	for _, ct := range []string{"text/plain", "", "application/x-www-form-urlencoded", "application/json-patch+json"} {
		t.Run(ct, func(t *testing.T) {
			_, err := Extract(jsonRequest(completeJSON, ct), s)
			assert.True(t, errors.Is(err, ErrNoSignKey), "got %v", err)
		})
	}
}

func TestExtract_JSONWithCharset(t *testing.T) {
	sr, err := Extract(jsonRequest(completeJSON, "application/json; charset=utf-8"), settingsAt(LocationJSON))
	require.NoError(t, err)
	assert.Equal(t, "c1", sr.AppID)
	assert.Equal(t, "ABC", sr.Signature)
	assert.False(t, sr.HasData)
}

func TestExtract_JSONBulkMissingKey(t *testing.T) {
	s := settingsAt(LocationJSON)

	tests := map[string]string{
		"missing signature": `{"x-app-id":"c1","x-request-id":"r1","timestamp":"1700000000"}`,
		"empty app id":      `{"x-app-id":"","x-request-id":"r1","x-sign":"ABC","timestamp":"1700000000"}`,
		"null timestamp":    `{"x-app-id":"c1","x-request-id":"r1","x-sign":"ABC","timestamp":null}`,
		"malformed":         `{"x-app-id":`,
		"array":             `["c1"]`,
		"scalar":            `"c1"`,
		"null":              `null`,
		"empty body":        ``,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(jsonRequest(body, contentTypeJSON), s)
			assert.True(t, errors.Is(err, ErrNoSignKey), "got %v", err)
		})
	}
}

func TestExtract_JSONScalarValues(t *testing.T) {
	body := `{"x-app-id":1001,"x-request-id":true,"x-sign":"ABC","timestamp":"1700000000","x-data":{"b": 2, "a": [1, 2]}}`

	sr, err := Extract(jsonRequest(body, contentTypeJSON), settingsAt(LocationJSON))
	require.NoError(t, err)
	assert.Equal(t, "1001", sr.AppID)
	assert.Equal(t, "true", sr.RequestID)
	assert.Equal(t, `{"b":2,"a":[1,2]}`, sr.Data)
	assert.True(t, sr.HasData)
}

func TestExtract_JSONNumericTimestampRejected(t *testing.T) {
	s := settingsAt(LocationJSON)
	v := newTestVerifier(t, s)

	body := `{"x-app-id":"c1","x-request-id":"r1","x-sign":"ABC","timestamp":1700000000}`
	err := v.Verify(jsonRequest(body, contentTypeJSON))
	assert.True(t, errors.Is(err, ErrTimestampFormat), "got %v", err)
}

func TestExtract_JSONEmptyRequiredValues(t *testing.T) {
	s := settingsAt(LocationJSON)
	v := newTestVerifier(t, s)

	tests := map[string]string{
		"zero timestamp":  `{"x-app-id":"c1","x-request-id":"r1","x-sign":"ABC","timestamp":0}`,
		"zero app id":     `{"x-app-id":0,"x-request-id":"r1","x-sign":"ABC","timestamp":"1700000000"}`,
		"false app id":    `{"x-app-id":false,"x-request-id":"r1","x-sign":"ABC","timestamp":"1700000000"}`,
		"empty object id": `{"x-app-id":"c1","x-request-id":{},"x-sign":"ABC","timestamp":"1700000000"}`,
		"empty list sign": `{"x-app-id":"c1","x-request-id":"r1","x-sign":[],"timestamp":"1700000000"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			err := v.Verify(jsonRequest(body, contentTypeJSON))
			assert.True(t, errors.Is(err, ErrNoSignKey), "got %v", err)
			assert.False(t, errors.Is(err, ErrTimestampFormat))
		})
	}
}

func TestExtract_JSONEmptyDataIsAbsent(t *testing.T) {
	s := settingsAt(LocationJSON)

	for _, data := range []string{`{}`, `[]`, `0`, `0.0`, `false`, `""`, `null`} {
		t.Run(data, func(t *testing.T) {
			body := `{"x-app-id":"c1","x-request-id":"r1","x-sign":"ABC","timestamp":"1700000000","x-data":` + data + `}`

			sr, err := Extract(jsonRequest(body, contentTypeJSON), s)
			require.NoError(t, err)
			assert.False(t, sr.HasData)
			assert.NotContains(t, sr.Params(s), s.DataName)
		})
	}
}

func TestVerify_JSONEmptyDataSignedWithoutExtras(t *testing.T) {
	s := settingsAt(LocationJSON)
	v := newTestVerifier(t, s)

	sr := &SignedRequest{AppID: "c1", RequestID: "r1", Timestamp: "1700000000"}
	sig := Sign(s, sr, "secretA")

	for _, data := range []string{`{}`, `[]`, `0`, `false`} {
		t.Run(data, func(t *testing.T) {
			body := `{"x-app-id":"c1","x-request-id":"r1","x-sign":"` + sig + `","timestamp":"1700000000","x-data":` + data + `}`
			assert.NoError(t, v.Verify(jsonRequest(body, contentTypeJSON)))
		})
	}
}

func TestExtract_FormContentTypeGuard(t *testing.T) {
	s := settingsAt(LocationForm)
	body := "x-app-id=c1&x-request-id=r1&x-sign=ABC&timestamp=1700000000"

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", contentTypeJSON)
	_, err := Extract(r, s)
	assert.True(t, errors.Is(err, ErrNoSignKey))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", contentTypeForm)
	sr, err := Extract(r, s)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", sr.Timestamp)
}

func TestExtract_FormBulkMissingKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x-app-id=c1&x-request-id=r1&timestamp=1700000000"))
	r.Header.Set("Content-Type", contentTypeForm)

	_, err := Extract(r, settingsAt(LocationForm))
	assert.True(t, errors.Is(err, ErrNoSignKey))
	assert.False(t, errors.Is(err, ErrNoSignature))
}

func TestExtract_FormIgnoresQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/?x-sign=ABC", strings.NewReader("x-app-id=c1&x-request-id=r1&timestamp=1700000000"))
	r.Header.Set("Content-Type", contentTypeForm)

	_, err := Extract(r, settingsAt(LocationForm))
	assert.True(t, errors.Is(err, ErrNoSignKey))
}

func TestExtract_QueryDoesNotBulkFail(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?x-app-id=c1&x-request-id=r1&timestamp=1700000000", nil)

	_, err := Extract(r, settingsAt(LocationQueryString))
	assert.True(t, errors.Is(err, ErrNoSignature))
}

func TestExtract_HeaderDataFallsBackToJSONBody(t *testing.T) {
	s := settingsAt(LocationHeaders)
	r := jsonRequest(`{"x-data":"from-body","other":1}`, contentTypeJSON)
	r.Header.Set("x-app-id", "c1")
	r.Header.Set("x-request-id", "r1")
	r.Header.Set("x-sign", "ABC")
	r.Header.Set("timestamp", "1700000000")

	sr, err := Extract(r, s)
	require.NoError(t, err)
	assert.Equal(t, "from-body", sr.Data)

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"x-data":"from-body","other":1}`, string(body))
}

func TestExtract_QueryDataPrefersQuery(t *testing.T) {
	r := jsonRequest(`{"x-data":"from-body"}`, contentTypeJSON)
	r.URL.RawQuery = "x-app-id=c1&x-request-id=r1&x-sign=ABC&timestamp=1700000000&x-data=from-query"

	sr, err := Extract(r, settingsAt(LocationQueryString))
	require.NoError(t, err)
	assert.Equal(t, "from-query", sr.Data)
}

func TestExtract_FallbackIgnoresBadBody(t *testing.T) {
	s := settingsAt(LocationQueryString)

	for name, r := range map[string]*http.Request{
		"malformed json": jsonRequest(`{"x-data":`, contentTypeJSON),
		"not json":       jsonRequest(`x-data=1`, "text/plain"),
		"json array":     jsonRequest(`[1]`, contentTypeJSON),
	} {
		t.Run(name, func(t *testing.T) {
			r.URL.RawQuery = "x-app-id=c1&x-request-id=r1&x-sign=ABC&timestamp=1700000000"
			sr, err := Extract(r, s)
			require.NoError(t, err)
			assert.False(t, sr.HasData)
		})
	}
}

func TestExtract_HeaderDataFallbackSigns(t *testing.T) {
	s := settingsAt(LocationHeaders)
	v := newTestVerifier(t, s)

	sr := NewSignedRequest("c1", "r1", testNow)
	sr.Data = "from-body"
	sig := Sign(s, sr, "secretA")

	r := jsonRequest(`{"x-data":"from-body"}`, contentTypeJSON)
	r.Header.Set("x-app-id", "c1")
	r.Header.Set("x-request-id", "r1")
	r.Header.Set("x-sign", sig)
	r.Header.Set("timestamp", sr.Timestamp)

	assert.NoError(t, v.Verify(r))
}

func TestExtract_EmptyDataIsNotSigned(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?x-app-id=c1&x-request-id=r1&x-sign=ABC&timestamp=1700000000&x-data=", nil)
	s := settingsAt(LocationQueryString)

	sr, err := Extract(r, s)
	require.NoError(t, err)
	assert.True(t, sr.HasData)
	assert.NotContains(t, sr.Params(s), s.DataName)
}

func TestPreserveRequestBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))

	body, err := PreserveRequestBody(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	again, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
}

func TestPreserveRequestBody_TooLarge(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))

	_, err := PreserveRequestBody(r)
	assert.True(t, errors.Is(err, ErrNoSignKey))
}
