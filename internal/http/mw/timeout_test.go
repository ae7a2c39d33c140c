package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ========================================
// TimeoutConfig Tests
// ========================================

func TestDefaultTimeoutConfig(t *testing.T) {
	cfg := DefaultTimeoutConfig()

	if cfg.Default != 30*time.Second {
		t.Errorf("Default = %v, want 30s", cfg.Default)
	}
	if cfg.Extended != 60*time.Second {
		t.Errorf("Extended = %v, want 60s", cfg.Extended)
	}
	if len(cfg.ExtendedSuffixes) != 3 {
		t.Errorf("ExtendedSuffixes length = %d, want 3", len(cfg.ExtendedSuffixes))
	}
}

func TestTimeoutConfig_TimeoutFor(t *testing.T) {
	cfg := DefaultTimeoutConfig()

	tests := []struct {
		path string
		want time.Duration
	}{
		{"/api/v1/session/abc/message", cfg.Extended},
		{"/api/v1/session/abc/message/", cfg.Extended},
		{"/api/v1/session/abc/checkout", cfg.Extended},
		{"/api/v1/upsell1/abc/action", cfg.Extended},
		{"/api/v1/session/abc/bucket", cfg.Default},
		{"/api/v1/session/start", cfg.Default},
		{"/api/v1/checkout/return", cfg.Default},
		{"/api/v1/health", cfg.Default},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := cfg.timeoutFor(tt.path); got != tt.want {
				t.Errorf("timeoutFor(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

// ========================================
// Timeout Middleware Tests
// ========================================

func TestTimeout_DefaultPath(t *testing.T) {
	cfg := TimeoutConfig{
		Default:          50 * time.Millisecond,
		Extended:         100 * time.Millisecond,
		ExtendedSuffixes: []string{"/message"},
	}

	handler := Timeout(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/abc", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestTimeout_ExtendedPath(t *testing.T) {
	cfg := TimeoutConfig{
		Default:          10 * time.Millisecond,
		Extended:         200 * time.Millisecond,
		ExtendedSuffixes: []string{"/message"},
	}

	handler := Timeout(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Longer than default, shorter than extended
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/abc/message", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (extended timeout should allow request)", rec.Code, http.StatusOK)
	}
}

func TestTimeout_DefaultTimedOut(t *testing.T) {
	cfg := TimeoutConfig{
		Default:          10 * time.Millisecond,
		Extended:         100 * time.Millisecond,
		ExtendedSuffixes: []string{"/message"},
	}

	release := make(chan struct{})
	handler := Timeout(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/abc", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	close(release)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d (should timeout)", rec.Code, http.StatusGatewayTimeout)
	}
	if !strings.Contains(rec.Body.String(), `"status":504`) {
		t.Errorf("body = %q, want a problem document", rec.Body.String())
	}
}

func TestTimeout_LateWriteIsDropped(t *testing.T) {
	tw := &timeoutWriter{ResponseWriter: httptest.NewRecorder()}
	tw.expire()

	if _, err := tw.Write([]byte("late")); err != http.ErrHandlerTimeout {
		t.Errorf("Write() after expiry error = %v, want ErrHandlerTimeout", err)
	}
	rec := tw.ResponseWriter.(*httptest.ResponseRecorder)
	if strings.Contains(rec.Body.String(), "late") {
		t.Error("late write reached the client")
	}
}

func TestTimeout_RepanicsHandlerPanic(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	handler := Timeout(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	defer func() {
		p := recover()
		if p == nil {
			t.Fatal("expected panic to propagate")
		}
		if !strings.Contains(p.(string), "boom") {
			t.Errorf("panic = %v, want original value", p)
		}
	}()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
}
