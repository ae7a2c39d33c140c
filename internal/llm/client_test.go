package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturedRequest struct {
	Path    string
	Auth    string
	Referer string
	Body    map[string]any
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		mu.Lock()
		reqs = append(reqs, capturedRequest{
			Path:    r.URL.Path,
			Auth:    r.Header.Get("Authorization"),
			Referer: r.Header.Get("HTTP-Referer"),
			Body:    decoded,
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "test-model",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "affirm"}
	}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// Complete Tests
// ========================================

func TestClient_Complete(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, completionBody)
	c := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, testLogger())

	result, err := c.Complete(context.Background(), Request{
		Model:     "test-model",
		System:    "classify",
		User:      "yes please",
		MaxTokens: 16,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if result.Content != "affirm" {
		t.Errorf("Content = %q, want affirm", result.Content)
	}
	if result.InputTokens != 12 || result.OutputTokens != 1 {
		t.Errorf("tokens = %d/%d", result.InputTokens, result.OutputTokens)
	}
	if result.IsTruncated() {
		t.Error("stop should not be truncated")
	}

	if len(*reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*reqs))
	}
	got := (*reqs)[0]
	if !strings.HasSuffix(got.Path, "/chat/completions") {
		t.Errorf("path = %q", got.Path)
	}
	if got.Auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.Auth)
	}
	if got.Body["model"] != "test-model" {
		t.Errorf("model = %v", got.Body["model"])
	}
	if got.Body["max_tokens"] != float64(16) {
		t.Errorf("max_tokens = %v", got.Body["max_tokens"])
	}
	msgs, _ := got.Body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system and user messages, got %d", len(msgs))
	}
}

func TestClient_Complete_NoRetryOnError(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`)
	c := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, testLogger())

	_, err := c.Complete(context.Background(), Request{Model: "m", User: "hi"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var llmErr *LLMError
	if !errors.As(err, &llmErr) || llmErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429 on LLMError, got %+v", llmErr)
	}
	if len(*reqs) != 1 {
		t.Errorf("expected a single attempt, got %d", len(*reqs))
	}
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, testLogger())
	_, err := c.Complete(context.Background(), Request{Model: "m", User: "hi", Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	c := NewClient(ClientConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"}, testLogger())

	_, err := c.Complete(context.Background(), Request{Model: "m", User: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestNewClient_Provider(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"https://openrouter.ai/api/v1", ProviderOpenRouter},
		{"https://api.openai.com/v1", "openai"},
		{"", "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.want+"_"+tt.baseURL, func(t *testing.T) {
			c := NewClient(ClientConfig{BaseURL: tt.baseURL, APIKey: "k"}, testLogger())
			if c.Provider() != tt.want {
				t.Errorf("Provider() = %q, want %q", c.Provider(), tt.want)
			}
		})
	}
}
