package routes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/prayerline/internal/http/handlers"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/service"
)

// SessionHandlers defines the intake conversation operations.
type SessionHandlers interface {
	StartSession(ctx context.Context, input *handlers.StartSessionInput) (*handlers.TurnOutput, error)
	GetSession(ctx context.Context, input *handlers.SessionPathInput) (*handlers.SessionStateOutput, error)
	SendMessage(ctx context.Context, input *handlers.SendMessageInput) (*handlers.TurnOutput, error)
	SelectBucket(ctx context.Context, input *handlers.SelectBucketInput) (*handlers.TurnOutput, error)
	Checkout(ctx context.Context, input *handlers.CheckoutInput) (*handlers.TurnOutput, error)
	CheckoutReturn(ctx context.Context, input *handlers.CheckoutReturnInput) (*handlers.SessionStateOutput, error)
}

// UpsellHandlers builds per-chain upsell operations.
type UpsellHandlers interface {
	Start(chain models.UpsellChain) func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error)
	Action(chain models.UpsellChain) func(context.Context, *handlers.UpsellActionInput) (*handlers.UpsellOutput, error)
	State(chain models.UpsellChain) func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error)
}

// IntentionHandlers defines the admin fulfilment operations.
type IntentionHandlers interface {
	MarkDelivered(ctx context.Context, input *handlers.IntentionPathInput) (*handlers.IntentionOutput, error)
}

// Handlers holds every handler the routes need.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)
	ListOffers  func(ctx context.Context, input *struct{}) (*handlers.ListOffersOutput, error)

	// Kubernetes probes
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	Session   SessionHandlers
	Upsell    UpsellHandlers
	Intention IntentionHandlers

	// PaymentWebhook is a raw handler; the signature covers the exact body.
	PaymentWebhook http.HandlerFunc
}

// NewHandlers wires the real handlers over the services. db is nil when the
// server runs on the ephemeral store.
func NewHandlers(svcs *service.Services, currency string, db handlers.DBPinger, logger *slog.Logger) *Handlers {
	return &Handlers{
		HealthCheck:    handlers.HealthCheck,
		ListOffers:     handlers.NewOfferHandler(currency).ListOffers,
		Livez:          handlers.Livez,
		Readyz:         handlers.NewReadyzHandler(db).Readyz,
		Session:        handlers.NewSessionHandler(svcs.Sessions, logger),
		Upsell:         handlers.NewUpsellHandler(svcs.Upsells, logger),
		Intention:      handlers.NewIntentionHandler(svcs.Intentions, logger),
		PaymentWebhook: handlers.NewPaymentWebhookHandler(svcs.Payments, logger).HandleWebhook,
	}
}
