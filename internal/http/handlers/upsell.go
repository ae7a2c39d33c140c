package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/service"
	"github.com/jmylchreest/prayerline/internal/upsell"
)

// UpsellHandler serves both post-payment offer chains. The chain is bound
// at route registration.
type UpsellHandler struct {
	upsells *service.UpsellService
	logger  *slog.Logger
}

// NewUpsellHandler creates an upsell handler.
func NewUpsellHandler(upsells *service.UpsellService, logger *slog.Logger) *UpsellHandler {
	return &UpsellHandler{upsells: upsells, logger: logger}
}

// UpsellResponse is the state of one chain.
type UpsellResponse struct {
	Chain         models.UpsellChain    `json:"chain"`
	Phase         models.UpsellPhase    `json:"phase"`
	Messages      []string              `json:"messages"`
	PurchaseTypes []models.PurchaseType `json:"purchase_types"`
	Complete      bool                  `json:"complete"`
	Stale         bool                  `json:"stale,omitempty" doc:"True when the action answered an offer that is no longer shown"`
}

// UpsellOutput wraps an upsell response.
type UpsellOutput struct {
	Body UpsellResponse
}

func upsellOutput(v *service.UpsellView) *UpsellOutput {
	resp := UpsellResponse{
		Chain:         v.Chain,
		Phase:         v.Phase,
		Messages:      v.Messages,
		PurchaseTypes: v.PurchaseTypes,
		Complete:      v.Complete,
		Stale:         v.Stale,
	}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	if resp.PurchaseTypes == nil {
		resp.PurchaseTypes = []models.PurchaseType{}
	}
	return &UpsellOutput{Body: resp}
}

// UpsellPathInput addresses a chain by the original session id.
type UpsellPathInput struct {
	ID string `path:"id" doc:"Original (paid) session ID"`
}

// UpsellActionInput is a button action or a free-text reply.
type UpsellActionInput struct {
	ID   string `path:"id" doc:"Original (paid) session ID"`
	Body struct {
		Action models.Intent    `json:"action,omitempty" enum:"accept,decline,more_info" doc:"Button action; omit to send free text"`
		Item   models.OfferType `json:"item,omitempty" enum:"candle,medal,pendant,protection_pendant" doc:"Item picked when a phase offers several"`
		Offer  models.OfferType `json:"offer,omitempty" enum:"candle,medal,pendant,protection_pendant" doc:"Offer the action answers"`
		Text   string           `json:"text,omitempty" maxLength:"2000" doc:"Free-text reply"`
	}
}

// Start returns a handler that starts the chain. Starting twice returns the
// current offer.
func (h *UpsellHandler) Start(chain models.UpsellChain) func(context.Context, *UpsellPathInput) (*UpsellOutput, error) {
	return func(ctx context.Context, input *UpsellPathInput) (*UpsellOutput, error) {
		v, err := h.upsells.Start(ctx, input.ID, chain)
		if err != nil {
			return nil, toHTTPError(h.logger, "upsell_start", err)
		}
		return upsellOutput(v), nil
	}
}

// Action returns a handler that applies one action to the chain.
func (h *UpsellHandler) Action(chain models.UpsellChain) func(context.Context, *UpsellActionInput) (*UpsellOutput, error) {
	return func(ctx context.Context, input *UpsellActionInput) (*UpsellOutput, error) {
		v, err := h.upsells.Act(ctx, input.ID, chain, upsell.Input{
			Action: input.Body.Action,
			Item:   input.Body.Item,
			Offer:  input.Body.Offer,
			Text:   input.Body.Text,
		})
		if err != nil {
			return nil, toHTTPError(h.logger, "upsell_action", err)
		}
		return upsellOutput(v), nil
	}
}

// State returns a handler that reads the chain.
func (h *UpsellHandler) State(chain models.UpsellChain) func(context.Context, *UpsellPathInput) (*UpsellOutput, error) {
	return func(ctx context.Context, input *UpsellPathInput) (*UpsellOutput, error) {
		v, err := h.upsells.State(ctx, input.ID, chain)
		if err != nil {
			return nil, toHTTPError(h.logger, "upsell_state", err)
		}
		return upsellOutput(v), nil
	}
}
