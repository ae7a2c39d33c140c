package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/service"
)

// SessionHandler serves the intake conversation endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// TurnResponse is returned by every conversation turn.
type TurnResponse struct {
	SessionID   string       `json:"session_id" doc:"Session ID"`
	Phase       models.Phase `json:"phase" doc:"Conversation phase after the turn"`
	Messages    []string     `json:"messages" doc:"Assistant messages to display in order"`
	CheckoutURL string       `json:"checkout_url,omitempty" doc:"Hosted checkout URL when a tier was selected"`
	Closed      bool         `json:"closed" doc:"True when the session accepts no further turns"`
}

// TurnOutput wraps a turn response.
type TurnOutput struct {
	Body TurnResponse
}

func turnOutput(res *service.TurnResult) *TurnOutput {
	messages := res.Messages
	if messages == nil {
		messages = []string{}
	}
	return &TurnOutput{Body: TurnResponse{
		SessionID:   res.SessionID,
		Phase:       res.Phase,
		Messages:    messages,
		CheckoutURL: res.CheckoutURL,
		Closed:      res.Closed,
	}}
}

// StartSessionBody carries optional ad attribution.
type StartSessionBody struct {
	UTMSource   string `json:"utm_source,omitempty" doc:"utm_source of the landing page visit"`
	UTMCampaign string `json:"utm_campaign,omitempty" doc:"utm_campaign of the landing page visit"`
	ClickID     string `json:"click_id,omitempty" doc:"Ad platform click id (fbclid, gclid)"`
}

// StartSessionInput is the request to start a session.
type StartSessionInput struct {
	Body *StartSessionBody
}

// StartSession creates a session and returns the greeting.
func (h *SessionHandler) StartSession(ctx context.Context, input *StartSessionInput) (*TurnOutput, error) {
	var in service.StartInput
	if input.Body != nil {
		in = service.StartInput{
			UTMSource:   input.Body.UTMSource,
			UTMCampaign: input.Body.UTMCampaign,
			ClickID:     input.Body.ClickID,
		}
	}
	res, err := h.sessions.Start(ctx, in)
	if err != nil {
		return nil, toHTTPError(h.logger, "start_session", err)
	}
	return turnOutput(res), nil
}

// SessionPathInput addresses one session.
type SessionPathInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// SendMessageInput is a free-text turn.
type SendMessageInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Text string `json:"text" minLength:"1" maxLength:"2000" doc:"What the visitor typed"`
	}
}

// SendMessage runs one free-text turn.
func (h *SessionHandler) SendMessage(ctx context.Context, input *SendMessageInput) (*TurnOutput, error) {
	res, err := h.sessions.Message(ctx, input.ID, input.Body.Text)
	if err != nil {
		return nil, toHTTPError(h.logger, "send_message", err)
	}
	return turnOutput(res), nil
}

// SelectBucketInput is the bucket button shortcut.
type SelectBucketInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Bucket models.Bucket `json:"bucket" enum:"healing,family,protection,grief,guidance" doc:"Prayer category"`
	}
}

// SelectBucket runs a structured bucket selection turn.
func (h *SessionHandler) SelectBucket(ctx context.Context, input *SelectBucketInput) (*TurnOutput, error) {
	res, err := h.sessions.SelectBucket(ctx, input.ID, input.Body.Bucket)
	if err != nil {
		return nil, toHTTPError(h.logger, "select_bucket", err)
	}
	return turnOutput(res), nil
}

// CheckoutInput is the tier button shortcut.
type CheckoutInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Tier string `json:"tier" minLength:"1" maxLength:"64" doc:"Tier name, e.g. small_candle"`
	}
}

// Checkout selects a tier and opens a hosted checkout.
func (h *SessionHandler) Checkout(ctx context.Context, input *CheckoutInput) (*TurnOutput, error) {
	res, err := h.sessions.Checkout(ctx, input.ID, input.Body.Tier)
	if err != nil {
		return nil, toHTTPError(h.logger, "checkout", err)
	}
	return turnOutput(res), nil
}

// MessageResponse is one history entry.
type MessageResponse struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// SessionStateResponse is the client-visible session state.
type SessionStateResponse struct {
	SessionID       string               `json:"session_id"`
	Phase           models.Phase         `json:"phase"`
	Bucket          models.Bucket        `json:"bucket"`
	UserName        string               `json:"user_name,omitempty"`
	Email           string               `json:"email,omitempty" doc:"Masked email address"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	ReadyForPayment bool                 `json:"ready_for_payment"`
	CrisisFlag      bool                 `json:"crisis_flag"`
	Closed          bool                 `json:"closed"`
	History         []MessageResponse    `json:"history"`
}

// SessionStateOutput wraps the session state.
type SessionStateOutput struct {
	Body SessionStateResponse
}

func sessionState(s *models.Session) *SessionStateOutput {
	history := make([]MessageResponse, 0, len(s.History))
	for _, m := range s.History {
		history = append(history, MessageResponse{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	resp := SessionStateResponse{
		SessionID:       s.ID,
		Phase:           s.Phase,
		Bucket:          s.Bucket,
		UserName:        s.UserName,
		PaymentStatus:   s.PaymentStatus,
		ReadyForPayment: s.ReadyForPayment,
		CrisisFlag:      s.CrisisFlag,
		Closed:          s.Closed(),
		History:         history,
	}
	if email := s.Email(); email != "" {
		resp.Email = logging.MaskEmail(email)
	}
	return &SessionStateOutput{Body: resp}
}

// GetSession returns the session state.
func (h *SessionHandler) GetSession(ctx context.Context, input *SessionPathInput) (*SessionStateOutput, error) {
	s, err := h.sessions.State(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(h.logger, "get_session", err)
	}
	return sessionState(s), nil
}

// CheckoutReturnInput carries the token from the checkout success URL.
type CheckoutReturnInput struct {
	Token string `query:"token" required:"true" doc:"Signed checkout return token"`
}

// CheckoutReturn resolves the return token to its session. Payment state is
// only changed by the webhook, so the client may see "pending" briefly.
func (h *SessionHandler) CheckoutReturn(ctx context.Context, input *CheckoutReturnInput) (*SessionStateOutput, error) {
	s, err := h.sessions.ConfirmFromReturn(ctx, input.Token)
	if err != nil {
		return nil, toHTTPError(h.logger, "checkout_return", err)
	}
	return sessionState(s), nil
}
