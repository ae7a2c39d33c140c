// Package llm provides the chat completion client used by the classifier and
// prayer composer, and classification of provider errors.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// Error categories for LLM operations.
var (
	// ErrModelUnavailable indicates the model is overloaded or not served.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInvalidAPIKey indicates the API key is invalid or expired.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrRateLimited indicates the provider rejected the call for rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates the bounded call ran out of time.
	ErrTimeout = errors.New("LLM call timed out")

	// ErrEmptyResponse indicates the provider returned no choices.
	ErrEmptyResponse = errors.New("empty LLM response")

	// ErrProviderError indicates a general provider error.
	ErrProviderError = errors.New("provider error")
)

// Categories reported on LLMError.Category.
const (
	CategoryRateLimit   = "rate_limit"
	CategoryInvalidKey  = "invalid_key"
	CategoryUnavailable = "unavailable"
	CategoryTimeout     = "timeout"
	CategoryEmpty       = "empty"
	CategoryUnknown     = "unknown"
)

// LLMError represents a failed call to an LLM provider.
type LLMError struct {
	// Err is the sentinel for the category.
	Err error

	// Cause is the error returned by the SDK.
	Cause error

	// HTTP status code (if applicable)
	StatusCode int

	Provider string
	Model    string
	Category string

	// Retryable reports whether a later call could succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown LLM error")
	}
	if e.Model != "" {
		b.WriteString(" (model " + e.Model + ")")
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the category sentinel.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// ClassifyError wraps an SDK error into an LLMError. A nil err returns nil and
// an existing LLMError is returned unchanged.
func ClassifyError(err error, provider, model string) *LLMError {
	if err == nil {
		return nil
	}

	var existing *LLMError
	if errors.As(err, &existing) {
		return existing
	}

	llmErr := &LLMError{
		Cause:    err,
		Provider: provider,
		Model:    model,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		llmErr.Err = ErrTimeout
		llmErr.Category = CategoryTimeout
		llmErr.Retryable = true
		return llmErr
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		llmErr.StatusCode = apiErr.StatusCode
	}

	switch llmErr.StatusCode {
	case http.StatusTooManyRequests:
		llmErr.Err = ErrRateLimited
		llmErr.Category = CategoryRateLimit
		llmErr.Retryable = true

	case http.StatusUnauthorized, http.StatusForbidden:
		llmErr.Err = ErrInvalidAPIKey
		llmErr.Category = CategoryInvalidKey

	case http.StatusServiceUnavailable, http.StatusBadGateway:
		llmErr.Err = ErrModelUnavailable
		llmErr.Category = CategoryUnavailable
		llmErr.Retryable = true

	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		llmErr.Err = ErrTimeout
		llmErr.Category = CategoryTimeout
		llmErr.Retryable = true

	default:
		llmErr = classifyByErrorMessage(llmErr, strings.ToLower(err.Error()))
	}

	return llmErr
}

// classifyByErrorMessage handles errors that carry no usable status code.
func classifyByErrorMessage(llmErr *LLMError, errStr string) *LLMError {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "ratelimit"):
		llmErr.Err = ErrRateLimited
		llmErr.Category = CategoryRateLimit
		llmErr.Retryable = true

	case strings.Contains(errStr, "overloaded") || strings.Contains(errStr, "capacity"):
		llmErr.Err = ErrModelUnavailable
		llmErr.Category = CategoryUnavailable
		llmErr.Retryable = true

	case strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "authentication"):
		llmErr.Err = ErrInvalidAPIKey
		llmErr.Category = CategoryInvalidKey

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		llmErr.Err = ErrTimeout
		llmErr.Category = CategoryTimeout
		llmErr.Retryable = true

	default:
		llmErr.Err = ErrProviderError
		llmErr.Category = CategoryUnknown
	}
	return llmErr
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
