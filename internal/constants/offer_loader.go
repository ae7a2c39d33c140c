package constants

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jmylchreest/prayerline/internal/config"
	"github.com/jmylchreest/prayerline/internal/models"
)

// OfferSettingsJSON is the override document stored at config/offers.json.
type OfferSettingsJSON struct {
	Tiers  map[string]OfferPriceJSON `json:"tiers"`
	Offers map[string]OfferPriceJSON `json:"offers"`
}

// OfferPriceJSON overrides display fields and price for one tier or offer.
type OfferPriceJSON struct {
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Order       *int   `json:"order,omitempty"` // tiers only
}

// OfferLoader provides S3-backed price overrides with caching.
type OfferLoader struct {
	loader *config.S3Loader

	mu     sync.RWMutex
	tiers  map[string]Tier
	offers map[models.OfferType]Offer
	logger *slog.Logger
}

// Global offer loader instance
var (
	offerLoader     *OfferLoader
	offerLoaderOnce sync.Once
)

// InitOfferLoader initializes the global offer loader.
// Call this at startup if object storage is configured.
func InitOfferLoader(cfg config.S3LoaderConfig) {
	offerLoaderOnce.Do(func() {
		offerLoader = newOfferLoader(cfg)
	})
}

func newOfferLoader(cfg config.S3LoaderConfig) *OfferLoader {
	l := &OfferLoader{
		loader: config.NewS3Loader(cfg),
		tiers:  make(map[string]Tier),
		offers: make(map[models.OfferType]Offer),
		logger: cfg.Logger,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// MaybeRefresh kicks off a background refresh when the cache is stale.
func (l *OfferLoader) MaybeRefresh(ctx context.Context) {
	if !l.loader.IsEnabled() || !l.loader.NeedsRefresh() {
		return
	}
	go l.refresh(context.WithoutCancel(ctx))
}

func (l *OfferLoader) refresh(ctx context.Context) {
	result, err := l.loader.Fetch(ctx)
	if err != nil || result == nil || result.NotChanged {
		return
	}
	l.apply(result.Data)
}

// apply parses an override document and swaps the cached overrides.
func (l *OfferLoader) apply(data []byte) {
	var settings OfferSettingsJSON
	if err := json.Unmarshal(data, &settings); err != nil {
		l.logger.Error("failed to parse offer settings JSON", "error", err)
		return
	}

	tiers := make(map[string]Tier, len(settings.Tiers))
	for name, p := range settings.Tiers {
		name = NormalizeTierName(name)
		base, ok := GetTier(name)
		if !ok {
			base = Tier{Name: name, DisplayName: name}
		}
		if p.AmountCents <= 0 {
			l.logger.Warn("ignoring tier override without a positive amount", "tier", name)
			continue
		}
		tiers[name] = mergeTier(base, p)
	}

	offers := make(map[models.OfferType]Offer, len(settings.Offers))
	for name, p := range settings.Offers {
		base, ok := GetOffer(models.OfferType(name))
		if !ok || p.AmountCents <= 0 {
			l.logger.Warn("ignoring unknown or unpriced offer override", "offer", name)
			continue
		}
		if p.DisplayName != "" {
			base.DisplayName = p.DisplayName
		}
		if p.Description != "" {
			base.Description = p.Description
		}
		base.AmountCents = p.AmountCents
		offers[base.Type] = base
	}

	l.mu.Lock()
	l.tiers = tiers
	l.offers = offers
	l.mu.Unlock()

	l.logger.Info("offer settings loaded from S3",
		"tier_count", len(tiers),
		"offer_count", len(offers),
	)
}

func mergeTier(base Tier, p OfferPriceJSON) Tier {
	if p.DisplayName != "" {
		base.DisplayName = p.DisplayName
	}
	if p.Description != "" {
		base.Description = p.Description
	}
	if p.Order != nil {
		base.Order = *p.Order
	}
	base.AmountCents = p.AmountCents
	return base
}

func (l *OfferLoader) tier(name string) (Tier, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tiers[name]
	return t, ok
}

func (l *OfferLoader) offer(t models.OfferType) (Offer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.offers[t]
	return o, ok
}

// GetTierWithS3 returns a tier, checking S3 overrides first.
func GetTierWithS3(ctx context.Context, name string) (Tier, bool) {
	name = NormalizeTierName(name)
	if offerLoader != nil {
		offerLoader.MaybeRefresh(ctx)
		if t, ok := offerLoader.tier(name); ok {
			return t, true
		}
	}
	return GetTier(name)
}

// GetOfferWithS3 returns an upsell offer, checking S3 overrides first.
func GetOfferWithS3(ctx context.Context, offerType models.OfferType) (Offer, bool) {
	if offerLoader != nil {
		offerLoader.MaybeRefresh(ctx)
		if o, ok := offerLoader.offer(offerType); ok {
			return o, true
		}
	}
	return GetOffer(offerType)
}

// ListTiersWithS3 returns every tier (defaults merged with overrides) in display order.
func ListTiersWithS3(ctx context.Context) []Tier {
	merged := make(map[string]Tier, len(Tiers))
	for k, v := range Tiers {
		merged[k] = v
	}

	if offerLoader != nil {
		offerLoader.MaybeRefresh(ctx)
		offerLoader.mu.RLock()
		for k, v := range offerLoader.tiers {
			merged[k] = v
		}
		offerLoader.mu.RUnlock()
	}
	return SortedTiers(merged)
}
