// Package testutil provides request builders and envelope assertions for
// handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJSONRequest creates an HTTP request with body marshaled as JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRawRequest creates a JSON request with a literal body, for malformed input.
func NewRawRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewFormRequest creates a url-encoded form submission.
func NewFormRequest(method, path string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Envelope mirrors the API response wrapper with a typed payload.
type Envelope[T any] struct {
	Success          bool   `json:"success"`
	Data             T      `json:"data"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// DecodeEnvelope unmarshals the response body into a typed envelope.
func DecodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) Envelope[T] {
	t.Helper()
	var env Envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "failed to unmarshal envelope: %s", rr.Body.String())
	return env
}

// AssertStatus asserts the response status code matches expected.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code: %s", rr.Body.String())
}

// AssertStatusAndError asserts a failed envelope with the given status and code.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	AssertStatus(t, rr, expectedStatus)
	env := DecodeEnvelope[json.RawMessage](t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, expectedCode, env.Error, "unexpected error code")
}

// AssertRedirect asserts a 303 to the given location.
func AssertRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	AssertStatus(t, rr, http.StatusSeeOther)
	assert.Equal(t, location, rr.Header().Get("Location"))
}
