// Package payment is the boundary to the payment gateway: checkout sessions
// for the intention tiers, off-session one-click charges for upsells, and
// verified webhook events.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/prayerline/internal/models"
)

var (
	// ErrDeclined is returned when the gateway refused the card.
	ErrDeclined = errors.New("payment declined")

	// ErrGatewayUnavailable is returned when the gateway could not be reached
	// or payments are not configured.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrNoPaymentMethod is returned for a one-click charge on a session that
	// has no stored payment method.
	ErrNoPaymentMethod = errors.New("no stored payment method")

	// ErrInvalidSignature is returned for webhook payloads that fail
	// verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrCheckoutNotOpen is returned when expiring a checkout that is no
	// longer open.
	ErrCheckoutNotOpen = errors.New("checkout not open")
)

// CheckoutRequest opens a hosted checkout for one tier.
type CheckoutRequest struct {
	SessionID      string
	PaymentID      string
	Tier           string
	DisplayName    string
	Description    string
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is a created hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// ChargeRequest is an off-session charge against a stored payment method.
type ChargeRequest struct {
	SessionID       string
	PaymentID       string
	Offer           models.OfferType
	Description     string
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	IdempotencyKey  string
}

// ChargeOutcome is the gateway's answer to a one-click charge. Status is
// paid when the gateway settled synchronously, pending when confirmation
// follows by webhook, and failed for a decline.
type ChargeOutcome struct {
	GatewayRef    string
	Status        models.PaymentStatus
	FailureReason string
}

// EventType is a webhook event the service acts on.
type EventType string

const (
	EventCheckoutCompleted EventType = "checkout.session.completed"
	EventCheckoutExpired   EventType = "checkout.session.expired"
	EventIntentSucceeded   EventType = "payment_intent.succeeded"
	EventIntentFailed      EventType = "payment_intent.payment_failed"
)

// Event is a verified webhook event reduced to what the service needs.
type Event struct {
	ID   string
	Type EventType
	// GatewayRef is the checkout session id or payment intent id.
	GatewayRef      string
	SessionID       string
	PaymentID       string
	PaymentIntentID string
	CustomerID      string
	FailureReason   string
}

// Gateway creates checkouts, charges stored cards and verifies webhooks.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ChargeOneClick(ctx context.Context, req ChargeRequest) (*ChargeOutcome, error)
	ResolvePaymentMethod(ctx context.Context, paymentIntentID string) (customerID, paymentMethodID string, err error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
	// ExpireCheckoutSession closes an open hosted checkout so it can no
	// longer be paid. It returns ErrCheckoutNotOpen when the checkout already
	// completed or expired.
	ExpireCheckoutSession(ctx context.Context, checkoutID string) error
}

// CheckoutKey is the idempotency key for a tier checkout attempt.
func CheckoutKey(sessionID, tier string, attempt int) string {
	return fmt.Sprintf("checkout:%s:%s:%d", sessionID, tier, attempt)
}

// OneClickKey is the idempotency key for an upsell charge attempt.
func OneClickKey(sessionID string, offer models.OfferType, attempt int) string {
	return fmt.Sprintf("oneclick:%s:%s:%d", sessionID, offer, attempt)
}

// Disabled is the gateway used when payments are not configured.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, CheckoutRequest) (*CheckoutSession, error) {
	return nil, ErrGatewayUnavailable
}

func (Disabled) ChargeOneClick(context.Context, ChargeRequest) (*ChargeOutcome, error) {
	return nil, ErrGatewayUnavailable
}

func (Disabled) ResolvePaymentMethod(context.Context, string) (string, string, error) {
	return "", "", ErrGatewayUnavailable
}

func (Disabled) ParseWebhook([]byte, string) (*Event, error) {
	return nil, ErrGatewayUnavailable
}

func (Disabled) ExpireCheckoutSession(context.Context, string) error {
	return ErrGatewayUnavailable
}
