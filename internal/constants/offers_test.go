package constants

import (
	"context"
	"testing"

	"github.com/jmylchreest/prayerline/internal/config"
	"github.com/jmylchreest/prayerline/internal/models"
)

// ========================================
// Catalogue Tests
// ========================================

func TestGetTier_Normalizes(t *testing.T) {
	tests := []string{"small_candle", "Small Candle", "small-candle", "  SMALL_CANDLE "}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			tier, ok := GetTier(name)
			if !ok {
				t.Fatalf("GetTier(%q) not found", name)
			}
			if tier.Name != TierSmallCandle {
				t.Errorf("Name = %q, want %q", tier.Name, TierSmallCandle)
			}
		})
	}

	if _, ok := GetTier("gold_plan"); ok {
		t.Error("unknown tier should not be found")
	}
}

func TestOffers_CoverAllOfferTypes(t *testing.T) {
	for _, ot := range []models.OfferType{models.OfferCandle, models.OfferMedal, models.OfferPendant, models.OfferProtectionPendant} {
		o, ok := GetOffer(ot)
		if !ok {
			t.Errorf("offer %q missing", ot)
			continue
		}
		if o.AmountCents <= 0 {
			t.Errorf("offer %q has no price", ot)
		}
	}
}

func TestSortedTiers(t *testing.T) {
	got := SortedTiers(Tiers)
	want := []string{TierSmallCandle, TierAltarCandle, TierNovena}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{1900, "usd", "$19.00"},
		{905, "USD", "$9.05"},
		{4900, "gbp", "£49.00"},
		{1250, "eur", "€12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatAmount(tt.cents, tt.currency); got != tt.want {
				t.Errorf("FormatAmount(%d, %q) = %q, want %q", tt.cents, tt.currency, got, tt.want)
			}
		})
	}
}

// ========================================
// Offer Loader Tests
// ========================================

func withLoader(t *testing.T, l *OfferLoader) {
	t.Helper()
	prev := offerLoader
	offerLoader = l
	t.Cleanup(func() { offerLoader = prev })
}

func TestOfferLoader_Apply(t *testing.T) {
	l := newOfferLoader(config.S3LoaderConfig{})
	l.apply([]byte(`{
		"tiers": {
			"novena": {"amount_cents": 4500, "display_name": "Novena of hope"},
			"altar_candle": {"amount_cents": 0}
		},
		"offers": {
			"medal": {"amount_cents": 3100},
			"bracelet": {"amount_cents": 1000}
		}
	}`))
	withLoader(t, l)

	ctx := context.Background()

	novena, ok := GetTierWithS3(ctx, "novena")
	if !ok || novena.AmountCents != 4500 || novena.DisplayName != "Novena of hope" {
		t.Errorf("novena = %+v, want overridden price and name", novena)
	}
	if novena.Order != Tiers[TierNovena].Order {
		t.Errorf("novena order = %d, want default %d", novena.Order, Tiers[TierNovena].Order)
	}

	altar, _ := GetTierWithS3(ctx, "altar_candle")
	if altar.AmountCents != Tiers[TierAltarCandle].AmountCents {
		t.Errorf("zero-priced override should be ignored, got %d", altar.AmountCents)
	}

	medal, _ := GetOfferWithS3(ctx, models.OfferMedal)
	if medal.AmountCents != 3100 {
		t.Errorf("medal price = %d, want 3100", medal.AmountCents)
	}
	if _, ok := GetOfferWithS3(ctx, models.OfferType("bracelet")); ok {
		t.Error("unknown offer override should not create an offer")
	}

	tiers := ListTiersWithS3(ctx)
	if len(tiers) != 3 || tiers[2].AmountCents != 4500 {
		t.Errorf("ListTiersWithS3() = %+v, want merged tiers", tiers)
	}
}

func TestOfferLoader_InvalidJSONKeepsPrevious(t *testing.T) {
	l := newOfferLoader(config.S3LoaderConfig{})
	l.apply([]byte(`{"tiers": {"novena": {"amount_cents": 4500}}}`))
	l.apply([]byte(`not json`))

	if tier, ok := l.tier(TierNovena); !ok || tier.AmountCents != 4500 {
		t.Errorf("tier = %+v, want previous override kept", tier)
	}
}

func TestGetTierWithS3_NoLoader(t *testing.T) {
	withLoader(t, nil)

	tier, ok := GetTierWithS3(context.Background(), TierAltarCandle)
	if !ok || tier.AmountCents != Tiers[TierAltarCandle].AmountCents {
		t.Errorf("GetTierWithS3() = %+v, want default", tier)
	}
}
