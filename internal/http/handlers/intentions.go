package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/service"
)

// IntentionHandler serves the admin delivery endpoint.
type IntentionHandler struct {
	intentions *service.IntentionService
	logger     *slog.Logger
}

// NewIntentionHandler creates an intention handler.
func NewIntentionHandler(intentions *service.IntentionService, logger *slog.Logger) *IntentionHandler {
	return &IntentionHandler{intentions: intentions, logger: logger}
}

// IntentionPathInput addresses one intention.
type IntentionPathInput struct {
	ID string `path:"id" doc:"Prayer intention ID"`
}

// IntentionOutput is the intention after delivery.
type IntentionOutput struct {
	Body struct {
		ID          string                 `json:"id"`
		SessionID   string                 `json:"session_id"`
		Status      models.IntentionStatus `json:"status"`
		DeliveredAt *time.Time             `json:"delivered_at,omitempty"`
	}
}

// MarkDelivered flips an intention to delivered exactly once.
func (h *IntentionHandler) MarkDelivered(ctx context.Context, input *IntentionPathInput) (*IntentionOutput, error) {
	in, err := h.intentions.MarkDelivered(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(h.logger, "mark_delivered", err)
	}
	h.logger.Info("intention delivered", "intention_id", in.ID, "session_id", in.SessionID)

	out := &IntentionOutput{}
	out.Body.ID = in.ID
	out.Body.SessionID = in.SessionID
	out.Body.Status = in.Status
	out.Body.DeliveredAt = in.DeliveredAt
	return out, nil
}
