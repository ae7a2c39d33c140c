package handlers

import (
	"context"
	"sort"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

// TierResponse is one primary purchase option.
type TierResponse struct {
	Name         string `json:"name" doc:"Tier name used with the checkout endpoint"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	AmountCents  int64  `json:"amount_cents"`
	DisplayPrice string `json:"display_price" doc:"Formatted price, e.g. $19.00"`
}

// OfferResponse is one upsell item.
type OfferResponse struct {
	Type         models.OfferType `json:"type"`
	DisplayName  string           `json:"display_name"`
	Description  string           `json:"description"`
	AmountCents  int64            `json:"amount_cents"`
	DisplayPrice string           `json:"display_price"`
}

// ListOffersOutput is the offer catalogue.
type ListOffersOutput struct {
	Body struct {
		Currency string          `json:"currency"`
		Tiers    []TierResponse  `json:"tiers" doc:"Primary tiers in display order"`
		Upsells  []OfferResponse `json:"upsells"`
	}
}

// OfferHandler serves the public offer catalogue.
type OfferHandler struct {
	currency string
}

// NewOfferHandler creates an offer handler for a payment currency.
func NewOfferHandler(currency string) *OfferHandler {
	return &OfferHandler{currency: currency}
}

// ListOffers returns tiers and upsell items, including object storage
// price overrides.
func (h *OfferHandler) ListOffers(ctx context.Context, _ *struct{}) (*ListOffersOutput, error) {
	out := &ListOffersOutput{}
	out.Body.Currency = h.currency

	for _, t := range constants.ListTiersWithS3(ctx) {
		out.Body.Tiers = append(out.Body.Tiers, TierResponse{
			Name:         t.Name,
			DisplayName:  t.DisplayName,
			Description:  t.Description,
			AmountCents:  t.AmountCents,
			DisplayPrice: constants.FormatAmount(t.AmountCents, h.currency),
		})
	}

	types := make([]models.OfferType, 0, len(constants.Offers))
	for typ := range constants.Offers {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, typ := range types {
		o, ok := constants.GetOfferWithS3(ctx, typ)
		if !ok {
			continue
		}
		out.Body.Upsells = append(out.Body.Upsells, OfferResponse{
			Type:         o.Type,
			DisplayName:  o.DisplayName,
			Description:  o.Description,
			AmountCents:  o.AmountCents,
			DisplayPrice: constants.FormatAmount(o.AmountCents, h.currency),
		})
	}
	return out, nil
}
