package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/prayerline/internal/config"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/notify"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ========================================
// Fake gateway
// ========================================

type fakeGateway struct {
	mu sync.Mutex

	checkoutErr error
	expireErr   error
	// chargeResult and chargeErr are returned by every one-click charge.
	chargeResult *payment.ChargeOutcome
	chargeErr    error
	events       map[string]*payment.Event

	checkouts []payment.CheckoutRequest
	charges   []payment.ChargeRequest
	expired   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		chargeResult: &payment.ChargeOutcome{Status: models.PaymentStatusPaid},
		events:       make(map[string]*payment.Event),
	}
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	id := "cs_" + req.IdempotencyKey
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (f *fakeGateway) ChargeOneClick(_ context.Context, req payment.ChargeRequest) (*payment.ChargeOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, req)
	if f.chargeResult == nil {
		return nil, f.chargeErr
	}
	out := *f.chargeResult
	if out.GatewayRef == "" {
		out.GatewayRef = fmt.Sprintf("pi_%d", len(f.charges))
	}
	return &out, f.chargeErr
}

func (f *fakeGateway) ResolvePaymentMethod(_ context.Context, paymentIntentID string) (string, string, error) {
	return "cus_resolved", "pm_" + paymentIntentID, nil
}

// ParseWebhook returns the event registered under the payload. The signature
// "bad" fails verification.
func (f *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if signature == "bad" {
		return nil, payment.ErrInvalidSignature
	}
	ev, ok := f.events[string(payload)]
	if !ok {
		return &payment.Event{ID: "evt_other", Type: "customer.created"}, nil
	}
	return ev, nil
}

func (f *fakeGateway) ExpireCheckoutSession(_ context.Context, checkoutID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expired = append(f.expired, checkoutID)
	return nil
}

func (f *fakeGateway) expiredCheckouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.expired...)
}

func (f *fakeGateway) on(payload string, ev *payment.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[payload] = ev
}

func (f *fakeGateway) setCharge(out *payment.ChargeOutcome, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeResult = out
	f.chargeErr = err
}

func (f *fakeGateway) checkoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checkouts)
}

func (f *fakeGateway) lastCheckout() payment.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkouts[len(f.checkouts)-1]
}

func (f *fakeGateway) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

func (f *fakeGateway) lastCharge() payment.ChargeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges[len(f.charges)-1]
}

// ========================================
// Recording sinks
// ========================================

type recordingSinks struct {
	mu          sync.Mutex
	leads       []notify.Lead
	intakes     []notify.IntakeRecord
	conversions []notify.Conversion
}

func (r *recordingSinks) CaptureEmailLead(_ context.Context, lead notify.Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = append(r.leads, lead)
}

func (r *recordingSinks) LogIntake(_ context.Context, rec notify.IntakeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intakes = append(r.intakes, rec)
}

func (r *recordingSinks) TrackConversion(_ context.Context, conv notify.Conversion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversions = append(r.conversions, conv)
}

func (r *recordingSinks) counts() (leads, intakes, conversions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads), len(r.intakes), len(r.conversions)
}

func (r *recordingSinks) lastConversion() notify.Conversion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversions[len(r.conversions)-1]
}

// ========================================
// Harness
// ========================================

type harness struct {
	svcs    *Services
	repos   *repository.Repositories
	gateway *fakeGateway
	sinks   *recordingSinks
}

func testConfig() *config.Config {
	return &config.Config{
		DeepeningTurns:      3,
		EscalationThreshold: 3,
		PaymentCurrency:     "usd",
		CheckoutSuccessURL:  "https://example.com/thank-you",
		CheckoutCancelURL:   "https://example.com/prayer",
		JWTSecret:           "test-jwt-secret",
		CheckoutTokenTTL:    time.Hour,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repos := repository.NewMemoryRepositories(time.Hour)
	h := &harness{
		repos:   repos,
		gateway: newFakeGateway(),
		sinks:   &recordingSinks{},
	}
	h.svcs = Assemble(testConfig(), repos, Deps{
		Gateway: h.gateway,
		Sinks:   h.sinks,
	}, testLogger())
	return h
}

// send runs free-text turns in order and returns the last result.
func (h *harness) send(t *testing.T, id string, texts ...string) *TurnResult {
	t.Helper()
	var res *TurnResult
	for _, text := range texts {
		var err error
		res, err = h.svcs.Sessions.Message(context.Background(), id, text)
		if err != nil {
			t.Fatalf("Message(%q) error = %v", text, err)
		}
	}
	return res
}

// toPaymentOffer starts a session and walks it to payment_offer.
func (h *harness) toPaymentOffer(t *testing.T) string {
	t.Helper()
	start, err := h.svcs.Sessions.Start(context.Background(), StartInput{UTMSource: "facebook", ClickID: "fbclid-1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res := h.send(t, start.SessionID, "Anna", "healing", "anna@example.com",
		"my mother Maria", "she has surgery on Friday", "a full recovery", "yes perfect", "yes")
	if res.Phase != models.PhasePaymentOffer {
		t.Fatalf("phase = %s, want payment_offer", res.Phase)
	}
	return start.SessionID
}

// checkout selects a tier and returns the turn result.
func (h *harness) checkout(t *testing.T, id, tier string) *TurnResult {
	t.Helper()
	res, err := h.svcs.Sessions.Checkout(context.Background(), id, tier)
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	return res
}

// completeCheckout delivers a checkout.session.completed webhook for the
// session's latest tier payment.
func (h *harness) completeCheckout(t *testing.T, id, tier string) *models.Payment {
	t.Helper()
	p := h.latest(t, id, models.PaymentKindTier, tier)
	body := "completed:" + p.ID
	h.gateway.on(body, &payment.Event{
		ID:              "evt_" + p.ID,
		Type:            payment.EventCheckoutCompleted,
		GatewayRef:      p.GatewayRef,
		SessionID:       id,
		PaymentID:       p.ID,
		PaymentIntentID: "pi_checkout",
		CustomerID:      "cus_1",
	})
	if err := h.svcs.Payments.ApplyWebhook(context.Background(), []byte(body), "sig"); err != nil {
		t.Fatalf("ApplyWebhook() error = %v", err)
	}
	return p
}

// toPaid walks a session through a completed checkout.
func (h *harness) toPaid(t *testing.T) string {
	t.Helper()
	id := h.toPaymentOffer(t)
	h.checkout(t, id, "small_candle")
	h.completeCheckout(t, id, "small_candle")
	return id
}

func (h *harness) latest(t *testing.T, id string, kind models.PaymentKind, item string) *models.Payment {
	t.Helper()
	p, err := h.repos.Payments.LatestForOffer(context.Background(), id, kind, item)
	if err != nil || p == nil {
		t.Fatalf("LatestForOffer(%s, %s) = %v, %v", kind, item, p, err)
	}
	return p
}

func (h *harness) session(t *testing.T, id string) *models.Session {
	t.Helper()
	s, err := h.repos.Sessions.Get(context.Background(), id)
	if err != nil || s == nil {
		t.Fatalf("Get(%s) = %v, %v", id, s, err)
	}
	return s
}

func tokenFrom(t *testing.T, checkoutURL string) string {
	t.Helper()
	u, err := url.Parse(checkoutURL)
	if err != nil {
		t.Fatalf("parse %q: %v", checkoutURL, err)
	}
	return u.Query().Get("token")
}
