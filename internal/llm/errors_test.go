package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/openai/openai-go"
)

// ========================================
// LLMError Tests
// ========================================

func TestLLMError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *LLMError
		expected string
	}{
		{
			name:     "sentinel only",
			err:      &LLMError{Err: ErrRateLimited},
			expected: "rate limited",
		},
		{
			name:     "with model and cause",
			err:      &LLMError{Err: ErrTimeout, Model: "m1", Cause: errors.New("boom")},
			expected: "LLM call timed out (model m1): boom",
		},
		{
			name:     "empty error",
			err:      &LLMError{},
			expected: "unknown LLM error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLLMError_Unwrap(t *testing.T) {
	llmErr := &LLMError{Err: ErrInvalidAPIKey}
	if !errors.Is(llmErr, ErrInvalidAPIKey) {
		t.Error("errors.Is should match the category sentinel")
	}
}

// ========================================
// ClassifyError Tests
// ========================================

func TestClassifyError_Nil(t *testing.T) {
	if ClassifyError(nil, "openai", "m") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestClassifyError_StatusCodes(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		category  string
		retryable bool
	}{
		{http.StatusTooManyRequests, ErrRateLimited, CategoryRateLimit, true},
		{http.StatusUnauthorized, ErrInvalidAPIKey, CategoryInvalidKey, false},
		{http.StatusForbidden, ErrInvalidAPIKey, CategoryInvalidKey, false},
		{http.StatusServiceUnavailable, ErrModelUnavailable, CategoryUnavailable, true},
		{http.StatusBadGateway, ErrModelUnavailable, CategoryUnavailable, true},
		{http.StatusGatewayTimeout, ErrTimeout, CategoryTimeout, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			apiErr := &openai.Error{StatusCode: tt.status}
			got := ClassifyError(fmt.Errorf("call: %w", apiErr), "openrouter", "m")
			if got.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.status)
			}
			if !errors.Is(got, tt.sentinel) {
				t.Errorf("Err = %v, want %v", got.Err, tt.sentinel)
			}
			if got.Category != tt.category {
				t.Errorf("Category = %q, want %q", got.Category, tt.category)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if got.Provider != "openrouter" || got.Model != "m" {
				t.Errorf("Provider/Model = %q/%q", got.Provider, got.Model)
			}
		})
	}
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	got := ClassifyError(fmt.Errorf("post: %w", context.DeadlineExceeded), "openai", "m")
	if got.Category != CategoryTimeout || !got.Retryable {
		t.Errorf("got category %q retryable %v", got.Category, got.Retryable)
	}
}

func TestClassifyError_ByMessage(t *testing.T) {
	tests := []struct {
		msg      string
		category string
	}{
		{"Rate limit reached for requests", CategoryRateLimit},
		{"model is overloaded", CategoryUnavailable},
		{"Invalid API key provided", CategoryInvalidKey},
		{"read: connection timeout", CategoryTimeout},
		{"something odd", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := ClassifyError(errors.New(tt.msg), "openai", "m")
			if got.Category != tt.category {
				t.Errorf("Category = %q, want %q", got.Category, tt.category)
			}
		})
	}
}

func TestClassifyError_AlreadyWrapped(t *testing.T) {
	orig := &LLMError{Err: ErrEmptyResponse, Category: CategoryEmpty}
	if got := ClassifyError(fmt.Errorf("outer: %w", orig), "openai", "m"); got != orig {
		t.Error("expected the existing LLMError to be returned")
	}
}

// ========================================
// IsRetryable Tests
// ========================================

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&LLMError{Retryable: true}) {
		t.Error("expected retryable")
	}
	if IsRetryable(&LLMError{}) {
		t.Error("expected not retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
