package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/prayerline/internal/models"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BackendURL overrides the API host. Used in tests.
	BackendURL string
}

// StripeGateway implements Gateway with Stripe Checkout and PaymentIntents.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

// NewStripeGateway creates a Stripe gateway with its own client instance.
func NewStripeGateway(cfg StripeConfig, logger *slog.Logger) *StripeGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger.With("component", "stripe_gateway"),
	}
}

// CreateCheckoutSession implements Gateway. The card is saved for
// off-session use so upsells can be charged with one click.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.SessionID),
		CustomerCreation:  stripe.String("always"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.DisplayName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String("off_session"),
			Metadata: map[string]string{
				"session_id": req.SessionID,
				"payment_id": req.PaymentID,
				"tier":       req.Tier,
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("session_id", req.SessionID)
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("tier", req.Tier)

	cs, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.mapError("create checkout session", err)
	}
	g.logger.Info("checkout session created", "session_id", req.SessionID, "tier", req.Tier, "checkout_id", cs.ID)
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// ChargeOneClick implements Gateway with a confirmed off-session
// PaymentIntent. A declined card returns ErrDeclined together with an outcome
// carrying the failed intent so the attempt can be recorded.
func (g *StripeGateway) ChargeOneClick(ctx context.Context, req ChargeRequest) (*ChargeOutcome, error) {
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return nil, ErrNoPaymentMethod
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Description:   stripe.String(req.Description),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("session_id", req.SessionID)
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("offer_type", string(req.Offer))

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			out := &ChargeOutcome{Status: models.PaymentStatusFailed, FailureReason: se.Msg}
			if se.PaymentIntent != nil {
				out.GatewayRef = se.PaymentIntent.ID
			}
			g.logger.Info("one-click charge declined", "session_id", req.SessionID, "offer", req.Offer, "code", se.Code)
			return out, fmt.Errorf("%w: %s", ErrDeclined, se.Msg)
		}
		return nil, g.mapError("create payment intent", err)
	}

	out := &ChargeOutcome{GatewayRef: pi.ID, Status: models.PaymentStatusPending}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = models.PaymentStatusPaid
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		out.Status = models.PaymentStatusFailed
		out.FailureReason = "payment method was not accepted"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			out.FailureReason = pi.LastPaymentError.Msg
		}
		return out, fmt.Errorf("%w: %s", ErrDeclined, out.FailureReason)
	}
	g.logger.Info("one-click charge created", "session_id", req.SessionID, "offer", req.Offer, "status", pi.Status)
	return out, nil
}

// ResolvePaymentMethod implements Gateway.
func (g *StripeGateway) ResolvePaymentMethod(ctx context.Context, paymentIntentID string) (string, string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return "", "", g.mapError("get payment intent", err)
	}
	var customerID, methodID string
	if pi.Customer != nil {
		customerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		methodID = pi.PaymentMethod.ID
	}
	return customerID, methodID, nil
}

// ParseWebhook implements Gateway. Unhandled event types are returned with
// only ID and Type set.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: EventType(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		out.GatewayRef = cs.ID
		out.SessionID = cs.Metadata["session_id"]
		out.PaymentID = cs.Metadata["payment_id"]
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
		if cs.Customer != nil {
			out.CustomerID = cs.Customer.ID
		}
		if out.Type == EventCheckoutExpired {
			out.FailureReason = "checkout expired"
		}

	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
		}
		out.GatewayRef = pi.ID
		out.PaymentIntentID = pi.ID
		out.SessionID = pi.Metadata["session_id"]
		out.PaymentID = pi.Metadata["payment_id"]
		if pi.Customer != nil {
			out.CustomerID = pi.Customer.ID
		}
		if out.Type == EventIntentFailed {
			out.FailureReason = "payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}
	}
	return out, nil
}

// ExpireCheckoutSession implements Gateway.
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, checkoutID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	cs, err := g.api.CheckoutSessions.Expire(checkoutID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrCheckoutNotOpen, se.Msg)
		}
		return g.mapError("expire checkout session", err)
	}
	g.logger.Info("checkout session expired", "checkout_id", cs.ID)
	return nil
}

func (g *StripeGateway) mapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Type == stripe.ErrorTypeCard {
			return fmt.Errorf("%w: %s", ErrDeclined, se.Msg)
		}
		if se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s: %s", ErrGatewayUnavailable, op, se.Msg)
		}
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
}
