package httputil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func makeResponse(status int, body string) *http.Response {
	u, _ := url.Parse("https://api.example.com/jobs/historical")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Request:    &http.Request{URL: u},
	}
}

func TestParseErrorResponse_Success(t *testing.T) {
	resp := makeResponse(200, `{"ok": true}`)
	if err := ParseErrorResponse(resp); err != nil {
		t.Errorf("Expected nil for 200, got %v", err)
	}
}

func TestParseErrorResponse_Error(t *testing.T) {
	resp := makeResponse(409, `{"error": "already in progress"}`)
	err := ParseErrorResponse(resp)
	if err == nil {
		t.Fatal("Expected error for 409")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T", err)
	}
	if httpErr.StatusCode != 409 {
		t.Errorf("Expected status 409, got %d", httpErr.StatusCode)
	}
	if !strings.Contains(httpErr.Body, "already in progress") {
		t.Errorf("Expected body in error, got %q", httpErr.Body)
	}

	// Body should still be readable by the caller
	bodyBytes, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(bodyBytes), "already in progress") {
		t.Error("Expected body to be re-readable after parsing")
	}
}

func TestParseErrorResponse_TruncatesLongBody(t *testing.T) {
	longBody := strings.Repeat("x", MaxErrorBodySize+100)
	err := ParseErrorResponse(makeResponse(500, longBody))

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T", err)
	}
	if len(httpErr.Body) != MaxErrorBodySize+3 { // "..." suffix
		t.Errorf("Expected truncated body, got length %d", len(httpErr.Body))
	}
}

func TestIsStatus(t *testing.T) {
	err := ParseErrorResponse(makeResponse(429, ""))
	if !IsStatus(err, 409, 429) {
		t.Error("Expected IsStatus to match 429")
	}
	if IsStatus(err, 500) {
		t.Error("Expected IsStatus not to match 500")
	}
	if IsStatus(errors.New("plain"), 429) {
		t.Error("Expected IsStatus false for non-HTTP error")
	}
	if StatusCode(nil) != 0 {
		t.Error("Expected 0 for nil error")
	}
}
