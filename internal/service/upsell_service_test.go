package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/upsell"
)

func upsellAccept() upsell.Input {
	return upsell.Input{Action: models.IntentAccept}
}

func upsellDecline() upsell.Input {
	return upsell.Input{Action: models.IntentDecline}
}

// ========================================
// Precondition Tests
// ========================================

func TestUpsellService_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unpaid := h.toPaymentOffer(t)
	paid := h.toPaid(t)

	tests := []struct {
		name    string
		id      string
		chain   models.UpsellChain
		wantErr error
	}{
		{"unknown session", "missing", models.UpsellChainOne, ErrSessionNotFound},
		{"chain one before payment", unpaid, models.UpsellChainOne, ErrUpsellLocked},
		{"chain two before chain one", paid, models.UpsellChainTwo, ErrUpsellLocked},
		{"unknown chain", paid, models.UpsellChain(3), ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svcs.Upsells.Start(ctx, tt.id, tt.chain); !errors.Is(err, tt.wantErr) {
				t.Errorf("Start() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := h.svcs.Upsells.State(ctx, paid, models.UpsellChainOne); !errors.Is(err, ErrUpsellLocked) {
		t.Errorf("State() before start error = %v, want ErrUpsellLocked", err)
	}
	if _, err := h.svcs.Upsells.Act(ctx, paid, models.UpsellChainOne, upsell.Input{Action: "buy_everything"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Act() with unknown action error = %v, want ErrInvalidInput", err)
	}
}

// ========================================
// Chain Tests
// ========================================

func TestUpsellService_StartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()

	first, err := h.svcs.Upsells.Start(ctx, id, models.UpsellChainOne)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if first.Phase != models.UpsellPhaseOfferCandle || len(first.Messages) == 0 {
		t.Fatalf("first start = %+v", first)
	}

	again, err := h.svcs.Upsells.Start(ctx, id, models.UpsellChainOne)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if again.Phase != first.Phase || len(again.Messages) != len(first.Messages) {
		t.Errorf("second start = %+v, want the same offer", again)
	}

	u, _ := h.repos.Upsells.Get(ctx, id, models.UpsellChainOne)
	if len(u.History) != len(first.Messages) {
		t.Errorf("history = %d entries, want %d", len(u.History), len(first.Messages))
	}
}

func TestUpsellService_AcceptCharges(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()

	// Act starts the chain when it was not started yet.
	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept())
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if view.Phase != models.UpsellPhaseOfferMedalOrPendant {
		t.Errorf("phase = %s, want offer_medal_or_pendant", view.Phase)
	}
	if len(view.PurchaseTypes) != 1 || view.PurchaseTypes[0] != models.OfferCandle.PurchaseType() {
		t.Errorf("purchase types = %v", view.PurchaseTypes)
	}

	req := h.gateway.lastCharge()
	if req.PaymentMethodID != "pm_pi_checkout" || req.AmountCents != 1200 {
		t.Errorf("charge request = %+v", req)
	}
	if req.IdempotencyKey != payment.OneClickKey(id, models.OfferCandle, 1) {
		t.Errorf("idempotency key = %q", req.IdempotencyKey)
	}

	p := h.latest(t, id, models.PaymentKindUpsell, string(models.OfferCandle))
	if p.Status != models.PaymentStatusPaid || p.PrayerID == nil {
		t.Errorf("upsell payment status=%s prayer_id=%v", p.Status, p.PrayerID)
	}
	if _, _, conversions := h.sinks.counts(); conversions != 2 {
		t.Errorf("conversions = %d, want 2 (tier + candle)", conversions)
	}
}

func TestUpsellService_CrisisReplyFlagsSession(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()
	before := h.gateway.chargeCount()

	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsell.Input{Text: "yes ok, honestly I want to kill myself"})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if view.Phase != models.UpsellPhaseOfferCandle || len(view.PurchaseTypes) != 0 {
		t.Errorf("phase=%s purchases=%v", view.Phase, view.PurchaseTypes)
	}
	if got := h.gateway.chargeCount(); got != before {
		t.Errorf("charges = %d, want %d", got, before)
	}
	if !h.session(t, id).CrisisFlag {
		t.Error("crisis flag not set on the original session")
	}

	// The flag stays set through later ordinary replies.
	if _, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellDecline()); err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if !h.session(t, id).CrisisFlag {
		t.Error("crisis flag cleared")
	}
}

func TestUpsellService_DeclinedChargeKeepsPhase(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()

	h.gateway.setCharge(&payment.ChargeOutcome{
		GatewayRef:    "pi_declined",
		Status:        models.PaymentStatusFailed,
		FailureReason: "card_declined",
	}, payment.ErrDeclined)

	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept())
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if view.Phase != models.UpsellPhaseOfferCandle || len(view.PurchaseTypes) != 0 {
		t.Errorf("after decline phase=%s purchases=%v", view.Phase, view.PurchaseTypes)
	}
	failed := h.latest(t, id, models.PaymentKindUpsell, string(models.OfferCandle))
	if failed.Status != models.PaymentStatusFailed || failed.Attempt != 1 {
		t.Errorf("failed payment status=%s attempt=%d", failed.Status, failed.Attempt)
	}

	h.gateway.setCharge(&payment.ChargeOutcome{Status: models.PaymentStatusPaid}, nil)
	view, err = h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept())
	if err != nil {
		t.Fatalf("retry Act() error = %v", err)
	}
	if view.Phase != models.UpsellPhaseOfferMedalOrPendant {
		t.Errorf("retry phase = %s", view.Phase)
	}
	retry := h.latest(t, id, models.PaymentKindUpsell, string(models.OfferCandle))
	if retry.Attempt != 2 || retry.IdempotencyKey != payment.OneClickKey(id, models.OfferCandle, 2) {
		t.Errorf("retry attempt=%d key=%q", retry.Attempt, retry.IdempotencyKey)
	}
}

func TestUpsellService_GatewayUnavailableRecordsNothing(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()
	h.gateway.setCharge(nil, payment.ErrGatewayUnavailable)

	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept())
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if view.Phase != models.UpsellPhaseOfferCandle {
		t.Errorf("phase = %s, want offer_candle", view.Phase)
	}
	payments, _ := h.repos.Payments.ListBySession(ctx, id)
	for _, p := range payments {
		if p.Kind == models.PaymentKindUpsell {
			t.Errorf("unexpected upsell payment %+v", p)
		}
	}
}

func TestUpsellService_StaleAction(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()
	if _, err := h.svcs.Upsells.Start(ctx, id, models.UpsellChainOne); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsell.Input{
		Action: models.IntentAccept,
		Offer:  models.OfferMedal,
	})
	if err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	if !view.Stale || view.Phase != models.UpsellPhaseOfferCandle {
		t.Errorf("view = %+v, want stale at offer_candle", view)
	}
	if h.gateway.chargeCount() != 0 {
		t.Error("stale action must not charge")
	}
}

func TestUpsellService_ChainTwoAfterChainOne(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()

	if _, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept()); err != nil {
		t.Fatalf("accept candle: %v", err)
	}
	view, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellDecline())
	if err != nil {
		t.Fatalf("decline medal: %v", err)
	}
	if !view.Complete {
		t.Fatalf("chain one view = %+v, want complete", view)
	}

	two, err := h.svcs.Upsells.Start(ctx, id, models.UpsellChainTwo)
	if err != nil {
		t.Fatalf("Start(chain two) error = %v", err)
	}
	if two.Phase != models.UpsellPhaseOfferProtectionPendant {
		t.Errorf("chain two phase = %s", two.Phase)
	}

	u, err := h.repos.Upsells.Get(ctx, id, models.UpsellChainTwo)
	if err != nil || u == nil {
		t.Fatalf("chain two record = %v, %v", u, err)
	}
	if u.Upsell1Outcome == nil || len(u.Upsell1Outcome.PurchaseTypes) != 1 {
		t.Errorf("chain one snapshot = %+v", u.Upsell1Outcome)
	}

	state, err := h.svcs.Upsells.State(ctx, id, models.UpsellChainTwo)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Phase != two.Phase || len(state.Messages) == 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestTrailingBatch(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleAssistant, Content: "offer"},
		{Role: models.RoleUser, Content: "accept"},
		{Role: models.RoleAssistant, Content: "thanks"},
		{Role: models.RoleAssistant, Content: "next offer"},
	}
	got := trailingBatch(history)
	if len(got) != 2 || got[0] != "thanks" || got[1] != "next offer" {
		t.Errorf("trailingBatch() = %v", got)
	}
	if got := trailingBatch(history[:1]); len(got) != 1 {
		t.Errorf("trailingBatch() without user entry = %v", got)
	}
}
