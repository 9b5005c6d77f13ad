package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atendai/chatd/internal/chat"
	"github.com/atendai/chatd/internal/provider"
	"github.com/atendai/chatd/pkg/observability"
	"github.com/atendai/chatd/pkg/security"
	"github.com/atendai/chatd/pkg/session"
)

type testBackend struct {
	handler http.Handler
	mock    *provider.MockProvider
	store   *session.MemoryStore
}

func newTestBackend(t *testing.T, opts Options) *testBackend {
	t.Helper()

	mock := provider.NewMockProvider()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	service := chat.NewService(mock, store, chat.ServiceConfig{
		SystemPrompt:  "instrução",
		Model:         "gpt-5",
		Temperature:   0.7,
		FallbackReply: "Desculpe, não consegui responder agora.",
		HistoryLimit:  20,
	})

	return &testBackend{
		handler: New(service, opts).Handler(),
		mock:    mock,
		store:   store,
	}
}

func (b *testBackend) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	return rec
}

func decodeChatResponse(t *testing.T, rec *httptest.ResponseRecorder) chatResponse {
	t.Helper()
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestRoot(t *testing.T) {
	b := newTestBackend(t, Options{})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "backend OK" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestChat_GeneratesSessionID(t *testing.T) {
	b := newTestBackend(t, Options{})
	b.mock.Responses = []*provider.CompletionResponse{
		{Content: "Das 9h às 18h."},
		{Content: "Aos sábados até 13h."},
	}

	rec := b.post(t, `{"message": "Qual o horário de atendimento?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeChatResponse(t, rec)
	if resp.SessionID == "" {
		t.Fatal("expected a generated session ID")
	}
	if resp.Reply == "" {
		t.Fatal("expected a non-empty reply")
	}

	// Second request reuses the session and accumulates history.
	rec = b.post(t, `{"message": "E no fim de semana?", "sessionId": "`+resp.SessionID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	second := decodeChatResponse(t, rec)
	if second.SessionID != resp.SessionID {
		t.Errorf("expected echoed session ID %q, got %q", resp.SessionID, second.SessionID)
	}

	history, _ := b.store.Get(context.Background(), resp.SessionID)
	if len(history) != 4 {
		t.Fatalf("expected history of 4 turns, got %d", len(history))
	}
	if history[0].Text != "Qual o horário de atendimento?" || history[2].Text != "E no fim de semana?" {
		t.Errorf("exchanges out of order: %+v", history)
	}
}

func TestChat_EchoesCallerSessionID(t *testing.T) {
	b := newTestBackend(t, Options{})

	rec := b.post(t, `{"message": "oi", "sessionId": "minha-sessao"}`)
	resp := decodeChatResponse(t, rec)
	if resp.SessionID != "minha-sessao" {
		t.Errorf("expected caller session ID, got %q", resp.SessionID)
	}
}

func TestChat_MissingMessage(t *testing.T) {
	b := newTestBackend(t, Options{})

	rec := b.post(t, `{"sessionId": "sess-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != msgMessageRequired {
		t.Errorf("unexpected error message: %q", resp.Error)
	}

	// No side effects: store untouched, provider never called.
	if b.store.Len() != 0 {
		t.Error("validation failure must not touch the session store")
	}
	if len(b.mock.Calls) != 0 {
		t.Error("validation failure must not call the provider")
	}
}

func TestChat_NonStringMessage(t *testing.T) {
	b := newTestBackend(t, Options{})

	for _, body := range []string{
		`{"message": 123}`,
		`{"message": null}`,
		`{"message": ["oi"]}`,
		`{"message": ""}`,
	} {
		rec := b.post(t, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestChat_MalformedBody(t *testing.T) {
	b := newTestBackend(t, Options{})

	rec := b.post(t, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestChat_ProviderFailure(t *testing.T) {
	b := newTestBackend(t, Options{})
	b.mock.Responses = []*provider.CompletionResponse{{Content: "ok"}}

	// Seed one successful exchange.
	rec := b.post(t, `{"message": "primeira", "sessionId": "sess-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed exchange failed: %d", rec.Code)
	}
	before, _ := b.store.Get(context.Background(), "sess-1")

	b.mock.Errors = append(b.mock.Errors, nil,
		provider.NewProviderError("mock", provider.ErrorCodeServerError, "upstream exploded: secret detail", errors.New("boom")))

	rec = b.post(t, `{"message": "segunda", "sessionId": "sess-1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	// Generic body only; provider detail stays out of the response.
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != msgInternalError {
		t.Errorf("unexpected error body: %q", resp.Error)
	}
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Error("provider error detail leaked to the client")
	}

	// History unchanged: no partial turn appended.
	after, _ := b.store.Get(context.Background(), "sess-1")
	if len(after) != len(before) {
		t.Errorf("history changed on failure: before %d, after %d", len(before), len(after))
	}
}

func TestChat_FallbackReply(t *testing.T) {
	b := newTestBackend(t, Options{})
	b.mock.Responses = []*provider.CompletionResponse{{Content: ""}}

	rec := b.post(t, `{"message": "oi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeChatResponse(t, rec)
	if resp.Reply != "Desculpe, não consegui responder agora." {
		t.Errorf("expected fallback reply, got %q", resp.Reply)
	}
}

func TestSecurityHeaders(t *testing.T) {
	b := newTestBackend(t, Options{})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing frame options header")
	}
}

func TestCORS(t *testing.T) {
	b := newTestBackend(t, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Error("allowed origin should be echoed")
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should not be allowed")
	}
}

func TestCORS_Preflight(t *testing.T) {
	b := newTestBackend(t, Options{})

	req := httptest.NewRequest("OPTIONS", "/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing allow-methods header on preflight")
	}
}

func TestRateLimit(t *testing.T) {
	b := newTestBackend(t, Options{
		RateLimiter: security.NewRateLimiter(1, 2),
	})

	for i := 0; i < 2; i++ {
		rec := b.post(t, `{"message": "oi"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := b.post(t, `{"message": "oi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	hc := observability.NewHealthChecker()
	hc.RegisterCheck(observability.PingCheck())
	b := newTestBackend(t, Options{Health: hc})

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		b.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
