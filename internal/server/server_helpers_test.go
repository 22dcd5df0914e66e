package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"customllm/internal/auditlog"
	"customllm/internal/core"
	"customllm/internal/providers/placeholder"
)

const testAPIKey = "sk-test-secret-key"

var testStartedAt = time.Unix(1700000000, 0)

func testConfig() *Config {
	return &Config{
		ModelName:   "custom-llm",
		OwnedBy:     "custom-llm",
		ServiceName: "custom-llm-server",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartedAt:   testStartedAt,
	}
}

func newTestServer(t *testing.T, provider core.Provider, mutate ...func(*Config)) *Server {
	t.Helper()
	if provider == nil {
		provider = placeholder.New(0)
	}
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	return New(provider, cfg)
}

type requestOption func(*http.Request)

func withBearer(key string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func newRequest(t *testing.T, method, target, body string, opts ...requestOption) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

func serve(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func do(t *testing.T, srv http.Handler, method, target, body string, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	return serve(srv, newRequest(t, method, target, body, opts...))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// errorEnvelope is the OpenAI-style error body
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// captureEmitter collects audit events in memory.
type captureEmitter struct {
	mu     sync.Mutex
	events []*auditlog.Event
}

func (e *captureEmitter) Emit(_ context.Context, events []*auditlog.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
	return nil
}

func (e *captureEmitter) Close() error { return nil }

func (e *captureEmitter) Events() []*auditlog.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*auditlog.Event(nil), e.events...)
}

// sseEvents splits an event-stream body into its data payloads.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		require.True(t, strings.HasPrefix(block, "data: "), "unexpected block %q", block)
		events = append(events, strings.TrimPrefix(block, "data: "))
	}
	return events
}
