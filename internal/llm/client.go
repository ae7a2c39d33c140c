package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jmylchreest/prayerline/internal/version"
)

// ProviderOpenRouter is the provider name reported when the base URL points
// at OpenRouter.
const ProviderOpenRouter = "openrouter"

// Default call limits.
const (
	DefaultTimeout   = 20 * time.Second
	DefaultMaxTokens = 512
)

// Completer produces a single chat completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Request is one system+user prompt.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Result is the text of the first choice.
type Result struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// IsTruncated returns true if the response was cut off by MaxTokens.
func (r *Result) IsTruncated() bool {
	return r.FinishReason == "length"
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Referer string // sent as HTTP-Referer for OpenRouter attribution
}

// Client calls an OpenAI-compatible chat completions endpoint. Each call is a
// single attempt bounded by the request timeout.
type Client struct {
	api      openai.Client
	provider string
	logger   *slog.Logger
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	provider := "openai"
	if strings.Contains(cfg.BaseURL, "openrouter") {
		provider = ProviderOpenRouter
		if cfg.Referer != "" {
			opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
		}
		opts = append(opts, option.WithHeader("X-Title", "Prayerline"))
	}

	return &Client{
		api:      openai.NewClient(opts...),
		provider: provider,
		logger:   logger.With("component", "llm"),
	}
}

// Provider returns the provider name used in errors and logs.
func (c *Client) Provider() string {
	return c.provider
}

// Complete sends the prompt and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	if req.Timeout == 0 {
		req.Timeout = DefaultTimeout
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		llmErr := ClassifyError(err, c.provider, req.Model)
		c.logger.Debug("LLM call failed",
			"model", req.Model,
			"category", llmErr.Category,
			"status", llmErr.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, llmErr
	}
	if len(resp.Choices) == 0 {
		return nil, &LLMError{Err: ErrEmptyResponse, Provider: c.provider, Model: req.Model, Category: CategoryEmpty}
	}

	choice := resp.Choices[0]
	result := &Result{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}

	c.logger.Debug("LLM call completed",
		"model", req.Model,
		"finish_reason", result.FinishReason,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
