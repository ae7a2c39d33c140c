package routes

import (
	"context"

	"github.com/jmylchreest/prayerline/internal/http/handlers"
	"github.com/jmylchreest/prayerline/internal/models"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: stubHealthCheck,
		ListOffers:  stubListOffers,
		Livez:       stubLivez,
		Readyz:      stubReadyz,
		Session:     &stubSessionHandlers{},
		Upsell:      &stubUpsellHandlers{},
		Intention:   &stubIntentionHandlers{},
	}
}

// --- Public endpoint stubs ---

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubListOffers(_ context.Context, _ *struct{}) (*handlers.ListOffersOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

// --- Session handlers stub ---

type stubSessionHandlers struct{}

func (s *stubSessionHandlers) StartSession(_ context.Context, _ *handlers.StartSessionInput) (*handlers.TurnOutput, error) {
	return nil, nil
}

func (s *stubSessionHandlers) GetSession(_ context.Context, _ *handlers.SessionPathInput) (*handlers.SessionStateOutput, error) {
	return nil, nil
}

func (s *stubSessionHandlers) SendMessage(_ context.Context, _ *handlers.SendMessageInput) (*handlers.TurnOutput, error) {
	return nil, nil
}

func (s *stubSessionHandlers) SelectBucket(_ context.Context, _ *handlers.SelectBucketInput) (*handlers.TurnOutput, error) {
	return nil, nil
}

func (s *stubSessionHandlers) Checkout(_ context.Context, _ *handlers.CheckoutInput) (*handlers.TurnOutput, error) {
	return nil, nil
}

func (s *stubSessionHandlers) CheckoutReturn(_ context.Context, _ *handlers.CheckoutReturnInput) (*handlers.SessionStateOutput, error) {
	return nil, nil
}

// --- Upsell handlers stub ---

type stubUpsellHandlers struct{}

func (s *stubUpsellHandlers) Start(_ models.UpsellChain) func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error) {
	return func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error) { return nil, nil }
}

func (s *stubUpsellHandlers) Action(_ models.UpsellChain) func(context.Context, *handlers.UpsellActionInput) (*handlers.UpsellOutput, error) {
	return func(context.Context, *handlers.UpsellActionInput) (*handlers.UpsellOutput, error) { return nil, nil }
}

func (s *stubUpsellHandlers) State(_ models.UpsellChain) func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error) {
	return func(context.Context, *handlers.UpsellPathInput) (*handlers.UpsellOutput, error) { return nil, nil }
}

// --- Intention handlers stub ---

type stubIntentionHandlers struct{}

func (s *stubIntentionHandlers) MarkDelivered(_ context.Context, _ *handlers.IntentionPathInput) (*handlers.IntentionOutput, error) {
	return nil, nil
}
