package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := LoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("done"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/collection", nil))

	line := buf.String()
	if !strings.Contains(line, "[POST] /api/collection") || !strings.Contains(line, "Status: 201") || !strings.Contains(line, "Bytes: 4") {
		t.Errorf("unexpected log line %q", line)
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORSMiddleware("https://field.example.org", "GET,POST,OPTIONS", "Content-Type,Idempotency-Key")(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/collection", nil)
	req.Header.Set("Origin", "https://field.example.org")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected preflight to short-circuit with 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://field.example.org" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected allow-origin for unlisted origin")
	}
	if rr.Code != http.StatusTeapot {
		t.Errorf("expected request to reach handler, got %d", rr.Code)
	}
}

func TestCORSMiddlewareWildcard(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := CORSMiddleware("*", "GET,POST,OPTIONS", "Content-Type")(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/collection", nil)
	req.Header.Set("Origin", "https://anywhere.example.net")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard allow-origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("credentials must not be allowed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Idempotency-Key" {
		t.Errorf("expected idempotency header to be allowed, got %q", got)
	}
}
