package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/repository"
)

// ========================================
// Webhook Tests
// ========================================

func TestApplyWebhook_CheckoutCompleted(t *testing.T) {
	h := newHarness(t)
	id := h.toPaymentOffer(t)
	h.checkout(t, id, constants.TierAltarCandle)
	p := h.completeCheckout(t, id, constants.TierAltarCandle)

	s := h.session(t, id)
	if s.Phase != models.PhasePaid || s.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("session phase=%s status=%s, want paid", s.Phase, s.PaymentStatus)
	}
	if s.GatewayCustomerID != "cus_resolved" || s.PaymentMethodID != "pm_pi_checkout" {
		t.Errorf("stored customer=%q method=%q", s.GatewayCustomerID, s.PaymentMethodID)
	}

	got, err := h.repos.Payments.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.PaymentStatusPaid || got.PaidAt == nil {
		t.Errorf("payment status=%s paid_at=%v", got.Status, got.PaidAt)
	}

	_, _, conversions := h.sinks.counts()
	if conversions != 1 {
		t.Fatalf("conversions = %d, want 1", conversions)
	}
	conv := h.sinks.lastConversion()
	if conv.AmountCents != 1900 || conv.Item != constants.TierAltarCandle || conv.UTMSource != "facebook" {
		t.Errorf("conversion = %+v", conv)
	}
}

func TestApplyWebhook_DuplicateIsRejectedOnce(t *testing.T) {
	h := newHarness(t)
	id := h.toPaymentOffer(t)
	h.checkout(t, id, constants.TierSmallCandle)
	p := h.completeCheckout(t, id, constants.TierSmallCandle)
	historyLen := len(h.session(t, id).History)

	err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte("completed:"+p.ID), "sig")
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("replay error = %v, want ErrDuplicateEvent", err)
	}
	if got := len(h.session(t, id).History); got != historyLen {
		t.Errorf("replay changed history: %d -> %d", historyLen, got)
	}
	if _, _, conversions := h.sinks.counts(); conversions != 1 {
		t.Errorf("conversions = %d after replay, want 1", conversions)
	}
}

func TestApplyWebhook_SecondTierCaptureIsFlaggedForRefund(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	before := h.session(t, id)

	// A second tier checkout left open from before the first was paid.
	stray := &models.Payment{
		ID:             "stray-novena",
		SessionID:      id,
		Kind:           models.PaymentKindTier,
		Tier:           constants.TierNovena,
		AmountCents:    3300,
		Currency:       "usd",
		Status:         models.PaymentStatusPending,
		GatewayRef:     "cs_stray",
		IdempotencyKey: payment.CheckoutKey(id, constants.TierNovena, 1),
	}
	_, err := h.repos.Sessions.Update(context.Background(), id, func(*models.Session) (*repository.TurnWrites, error) {
		return &repository.TurnWrites{NewPayments: []*models.Payment{stray}}, nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	h.completeCheckout(t, id, constants.TierNovena)

	got, err := h.repos.Payments.Get(context.Background(), stray.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.PaymentStatusPaid || got.FailureReason != refundDueReason {
		t.Errorf("stray payment status=%s reason=%q, want paid with refund flag", got.Status, got.FailureReason)
	}
	after := h.session(t, id)
	if after.Phase != before.Phase || len(after.History) != len(before.History) {
		t.Errorf("session changed: phase %s -> %s, history %d -> %d",
			before.Phase, after.Phase, len(before.History), len(after.History))
	}
	if _, _, conversions := h.sinks.counts(); conversions != 1 {
		t.Errorf("conversions = %d, want 1", conversions)
	}
}

func TestApplyWebhook_Ignored(t *testing.T) {
	h := newHarness(t)
	id := h.toPaymentOffer(t)
	h.checkout(t, id, constants.TierSmallCandle)
	p := h.latest(t, id, models.PaymentKindTier, constants.TierSmallCandle)

	tests := []struct {
		name string
		ev   *payment.Event
	}{
		{"unknown payment", &payment.Event{ID: "evt_1", Type: payment.EventCheckoutCompleted, GatewayRef: "cs_unknown"}},
		{"intent event for checkout payment", &payment.Event{ID: "evt_2", Type: payment.EventIntentSucceeded, PaymentID: p.ID, SessionID: id}},
		{"metadata for another session", &payment.Event{ID: "evt_3", Type: payment.EventCheckoutCompleted, PaymentID: p.ID, SessionID: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.gateway.on(tt.name, tt.ev)
			if err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte(tt.name), "sig"); err != nil {
				t.Fatalf("ApplyWebhook() error = %v", err)
			}
			if s := h.session(t, id); s.PaymentStatus != models.PaymentStatusPending {
				t.Errorf("session status = %s, want pending", s.PaymentStatus)
			}
		})
	}

	t.Run("unhandled type", func(t *testing.T) {
		if err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte("anything"), "sig"); err != nil {
			t.Errorf("ApplyWebhook() error = %v", err)
		}
	})
}

func TestApplyWebhook_BadSignature(t *testing.T) {
	h := newHarness(t)
	err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte("{}"), "bad")
	if !errors.Is(err, payment.ErrInvalidSignature) {
		t.Errorf("error = %v, want ErrInvalidSignature", err)
	}
}

func TestApplyWebhook_FallsBackToMetadata(t *testing.T) {
	h := newHarness(t)
	id := h.toPaymentOffer(t)
	h.checkout(t, id, constants.TierSmallCandle)
	p := h.latest(t, id, models.PaymentKindTier, constants.TierSmallCandle)

	h.gateway.on("by-metadata", &payment.Event{
		ID:        "evt_meta",
		Type:      payment.EventCheckoutCompleted,
		SessionID: id,
		PaymentID: p.ID,
	})
	if err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte("by-metadata"), "sig"); err != nil {
		t.Fatalf("ApplyWebhook() error = %v", err)
	}
	if s := h.session(t, id); s.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("session status = %s, want paid", s.PaymentStatus)
	}
}

// ========================================
// One-Click Charge Tests
// ========================================

func TestChargeOneClick_ReturnsExistingAttempt(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	ctx := context.Background()

	if _, err := h.svcs.Upsells.Act(ctx, id, models.UpsellChainOne, upsellAccept()); err != nil {
		t.Fatalf("Act() error = %v", err)
	}
	calls := h.gateway.chargeCount()

	s := h.session(t, id)
	res, err := h.svcs.Payments.ChargeOneClick(ctx, s, models.OfferCandle, 1200)
	if err != nil {
		t.Fatalf("ChargeOneClick() error = %v", err)
	}
	if res.New || res.Payment.Status != models.PaymentStatusPaid {
		t.Errorf("result new=%v status=%s, want the existing paid attempt", res.New, res.Payment.Status)
	}
	if h.gateway.chargeCount() != calls {
		t.Error("existing attempt must not call the gateway again")
	}
}

func TestChargeOneClick_GatewayUnavailableRecordsNothing(t *testing.T) {
	h := newHarness(t)
	id := h.toPaid(t)
	h.gateway.setCharge(nil, payment.ErrGatewayUnavailable)

	res, err := h.svcs.Payments.ChargeOneClick(context.Background(), h.session(t, id), models.OfferCandle, 1200)
	if res != nil || !errors.Is(err, payment.ErrGatewayUnavailable) {
		t.Errorf("ChargeOneClick() = %v, %v", res, err)
	}
}

func TestWithQuery(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"no query", "https://example.com/thanks", "https://example.com/thanks?token=abc"},
		{"existing query", "https://example.com/thanks?lang=en", "https://example.com/thanks?lang=en&token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withQuery(tt.base, "token", "abc")
			if err != nil {
				t.Fatalf("withQuery() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("withQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
