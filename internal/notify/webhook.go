package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/version"
)

// WebhookError is a non-success response from a webhook endpoint.
type WebhookError struct {
	StatusCode int
	URL        string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// WebhookSink posts Svix-signed JSON envelopes to one endpoint.
type WebhookSink struct {
	name   string
	url    string
	signer *svix.Webhook
	client *http.Client
	logger *slog.Logger
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewWebhookSink creates a sink for url signed with secret (whsec_...).
func NewWebhookSink(name, url, secret string, logger *slog.Logger) (*WebhookSink, error) {
	signer, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid %s signing secret: %w", name, err)
	}
	return &WebhookSink{
		name:   name,
		url:    url,
		signer: signer,
		client: &http.Client{Timeout: constants.NotifyDeliveryTimeout},
		logger: logger.With("component", "notify_"+name),
	}, nil
}

// Deliver implements Deliverer. It makes a single attempt.
func (s *WebhookSink) Deliver(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(envelope{Type: eventType, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	msgID := "msg_" + ulid.Make().String()
	now := time.Now()
	signature, err := s.signer.Sign(msgID, now, body)
	if err != nil {
		return fmt.Errorf("failed to sign payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookError{StatusCode: resp.StatusCode, URL: s.url}
	}
	s.logger.Debug("delivered", "type", eventType, "msg_id", msgID)
	return nil
}
