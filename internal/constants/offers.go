// Package constants defines the offer catalogue and other centralized values.
// Change prices here to update them across the entire application; a JSON
// document in object storage can override them at runtime.
package constants

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/prayerline/internal/models"
)

// Tier names for the primary intention purchase.
const (
	TierSmallCandle = "small_candle"
	TierAltarCandle = "altar_candle"
	TierNovena      = "novena"
)

// Tier is a priced option offered in the payment_offer phase.
type Tier struct {
	Name        string
	DisplayName string
	Description string
	AmountCents int64
	// Order controls the display order in the offer message (lower = first).
	Order int
}

// Offer is a priced upsell item.
type Offer struct {
	Type        models.OfferType
	DisplayName string
	Description string
	AmountCents int64
}

// Tiers defines the primary purchase options.
var Tiers = map[string]Tier{
	TierSmallCandle: {
		Name:        TierSmallCandle,
		DisplayName: "Votive candle",
		Description: "A candle lit for your intention for one day",
		AmountCents: 900,
		Order:       0,
	},
	TierAltarCandle: {
		Name:        TierAltarCandle,
		DisplayName: "Altar candle",
		Description: "A large altar candle kept burning for seven days",
		AmountCents: 1900,
		Order:       1,
	},
	TierNovena: {
		Name:        TierNovena,
		DisplayName: "Nine-day novena",
		Description: "Your intention prayed for nine consecutive days",
		AmountCents: 3900,
		Order:       2,
	},
}

// Offers defines the upsell items keyed by offer type.
var Offers = map[models.OfferType]Offer{
	models.OfferCandle: {
		Type:        models.OfferCandle,
		DisplayName: "Remembrance candle",
		Description: "A second candle lit beside your intention",
		AmountCents: 1200,
	},
	models.OfferMedal: {
		Type:        models.OfferMedal,
		DisplayName: "Blessed medal",
		Description: "A small medal blessed with your intention, posted to you",
		AmountCents: 2900,
	},
	models.OfferPendant: {
		Type:        models.OfferPendant,
		DisplayName: "Prayer pendant",
		Description: "A pendant to wear as a reminder of your prayer",
		AmountCents: 3900,
	},
	models.OfferProtectionPendant: {
		Type:        models.OfferProtectionPendant,
		DisplayName: "Protection pendant",
		Description: "A pendant blessed for protection over you and your family",
		AmountCents: 4900,
	},
}

// GetTier returns the compiled-in tier or false.
func GetTier(name string) (Tier, bool) {
	t, ok := Tiers[NormalizeTierName(name)]
	return t, ok
}

// GetOffer returns the compiled-in upsell offer or false.
func GetOffer(offerType models.OfferType) (Offer, bool) {
	o, ok := Offers[offerType]
	return o, ok
}

// NormalizeTierName accepts "Small Candle", "small-candle" and similar spellings.
func NormalizeTierName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	return n
}

// SortedTiers returns tiers in display order.
func SortedTiers(tiers map[string]Tier) []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FormatAmount renders cents as a display price, e.g. 1900 -> "$19.00".
func FormatAmount(cents int64, currency string) string {
	symbol := "$"
	switch strings.ToLower(currency) {
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, cents/100, cents%100)
}
