package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/prayerline/internal/auth"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/conversation"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/notify"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/repository"
)

// refundDueReason marks a tier payment captured after the session was
// already paid by another tier.
const refundDueReason = "refund due: session already paid"

// PaymentConfig holds checkout settings.
type PaymentConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// PaymentService creates checkouts and one-click charges and applies gateway
// webhooks.
type PaymentService struct {
	repos   *repository.Repositories
	gateway payment.Gateway
	engine  *conversation.Engine
	tokens  *auth.CheckoutTokens
	sinks   notify.Sinks
	locks   *keyedMutex
	cfg     PaymentConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	repos *repository.Repositories,
	gateway payment.Gateway,
	engine *conversation.Engine,
	tokens *auth.CheckoutTokens,
	sinks notify.Sinks,
	locks *keyedMutex,
	cfg PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &PaymentService{
		repos:   repos,
		gateway: gateway,
		engine:  engine,
		tokens:  tokens,
		sinks:   sinks,
		locks:   locks,
		cfg:     cfg,
		logger:  logger.With("component", "payment_service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CheckoutResult is the outcome of starting a tier checkout.
type CheckoutResult struct {
	Payment     *models.Payment
	New         bool // Payment must be inserted with the turn
	URL         string
	AlreadyPaid bool
	// Superseded fails pending checkouts for other tiers. It must be written
	// with the turn even when opening the new checkout failed.
	Superseded []repository.PaymentStatusChange
}

// beginCheckout opens a gateway checkout for a tier. A pending attempt for
// the same tier is reused with its idempotency key; a failed one is retried
// as attempt+1. Pending checkouts for other tiers are expired first so a
// session never holds two payable tier checkouts.
func (s *PaymentService) beginCheckout(ctx context.Context, sess *models.Session, tier constants.Tier) (*CheckoutResult, error) {
	if sess.PaymentStatus == models.PaymentStatusPaid {
		return &CheckoutResult{AlreadyPaid: true}, nil
	}
	latest, err := s.repos.Payments.LatestForOffer(ctx, sess.ID, models.PaymentKindTier, tier.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if latest != nil && latest.Status == models.PaymentStatusPaid {
		return &CheckoutResult{Payment: latest, AlreadyPaid: true}, nil
	}

	res := &CheckoutResult{}
	res.Superseded, err = s.expireOtherTiers(ctx, sess.ID, tier.Name)
	if err != nil {
		return res, err
	}

	p := &models.Payment{
		ID:          ulid.Make().String(),
		SessionID:   sess.ID,
		Kind:        models.PaymentKindTier,
		Tier:        tier.Name,
		AmountCents: tier.AmountCents,
		Currency:    s.cfg.Currency,
		Status:      models.PaymentStatusPending,
		Attempt:     1,
	}
	isNew := true
	if latest != nil {
		if latest.Status == models.PaymentStatusPending {
			p, isNew = latest, false
		} else {
			p.Attempt = latest.Attempt + 1
		}
	}
	if isNew {
		p.IdempotencyKey = payment.CheckoutKey(sess.ID, tier.Name, p.Attempt)
		if in, err := s.repos.Intentions.GetBySession(ctx, sess.ID); err == nil && in != nil {
			p.PrayerID = models.StringPtr(in.ID)
		}
	}

	token, err := s.tokens.Issue(sess.ID, p.ID)
	if err != nil {
		return res, err
	}
	successURL, err := withQuery(s.cfg.SuccessURL, "token", token)
	if err != nil {
		return res, err
	}

	cs, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		SessionID:      sess.ID,
		PaymentID:      p.ID,
		Tier:           tier.Name,
		DisplayName:    tier.DisplayName,
		Description:    tier.Description,
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		CustomerEmail:  sess.Email(),
		SuccessURL:     successURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return res, err
	}
	if isNew {
		p.GatewayRef = cs.ID
	}
	res.Payment, res.New, res.URL = p, isNew, cs.URL
	return res, nil
}

// expireOtherTiers closes pending checkouts opened for tiers other than keep
// and returns the status changes that fail them. A checkout the gateway will
// not expire may already be paid, so that error stops the new checkout.
func (s *PaymentService) expireOtherTiers(ctx context.Context, sessionID, keep string) ([]repository.PaymentStatusChange, error) {
	payments, err := s.repos.Payments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	log := logging.FromContext(ctx, s.logger)

	var changes []repository.PaymentStatusChange
	for _, p := range payments {
		if p.Kind != models.PaymentKindTier || p.Tier == keep || p.Status != models.PaymentStatusPending {
			continue
		}
		if p.GatewayRef != "" {
			if err := s.gateway.ExpireCheckoutSession(ctx, p.GatewayRef); err != nil {
				return changes, fmt.Errorf("expire %s checkout: %w", p.Tier, err)
			}
		}
		log.Info("tier checkout replaced", "payment_id", p.ID, "tier", p.Tier, "by", keep)
		changes = append(changes, repository.PaymentStatusChange{
			PaymentID:     p.ID,
			From:          models.PaymentStatusPending,
			To:            models.PaymentStatusFailed,
			FailureReason: "replaced by " + keep + " checkout",
			At:            s.now(),
		})
	}
	return changes, nil
}

// ChargeResult is the outcome of a one-click charge.
type ChargeResult struct {
	Payment *models.Payment
	New     bool // Payment must be inserted with the turn
}

// ChargeOneClick charges an upsell offer against the stored payment method.
// It is idempotent per (session, offer): a pending or paid attempt is
// returned without calling the gateway. A declined charge returns the failed
// attempt together with payment.ErrDeclined. A nil result means nothing was
// charged and nothing needs recording.
func (s *PaymentService) ChargeOneClick(ctx context.Context, sess *models.Session, offer models.OfferType, amountCents int64) (*ChargeResult, error) {
	latest, err := s.repos.Payments.LatestForOffer(ctx, sess.ID, models.PaymentKindUpsell, string(offer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if latest != nil && latest.Status != models.PaymentStatusFailed {
		return &ChargeResult{Payment: latest}, nil
	}

	attempt := 1
	if latest != nil {
		attempt = latest.Attempt + 1
	}
	p := &models.Payment{
		ID:             ulid.Make().String(),
		SessionID:      sess.ID,
		Kind:           models.PaymentKindUpsell,
		OfferType:      offer,
		AmountCents:    amountCents,
		Currency:       s.cfg.Currency,
		Status:         models.PaymentStatusPending,
		IdempotencyKey: payment.OneClickKey(sess.ID, offer, attempt),
		Attempt:        attempt,
	}
	if in, err := s.repos.Intentions.GetBySession(ctx, sess.ID); err == nil && in != nil {
		p.PrayerID = models.StringPtr(in.ID)
	}
	description := string(offer)
	if o, ok := constants.GetOfferWithS3(ctx, offer); ok {
		description = o.DisplayName
	}

	out, chargeErr := s.gateway.ChargeOneClick(ctx, payment.ChargeRequest{
		SessionID:       sess.ID,
		PaymentID:       p.ID,
		Offer:           offer,
		Description:     description,
		AmountCents:     amountCents,
		Currency:        p.Currency,
		CustomerID:      sess.GatewayCustomerID,
		PaymentMethodID: sess.PaymentMethodID,
		IdempotencyKey:  p.IdempotencyKey,
	})
	if out == nil {
		return nil, chargeErr
	}

	p.GatewayRef = out.GatewayRef
	if p.GatewayRef == "" {
		p.GatewayRef = "unassigned:" + p.IdempotencyKey
	}
	p.Status = out.Status
	p.FailureReason = out.FailureReason
	if p.Status == models.PaymentStatusPaid {
		paidAt := s.now()
		p.PaidAt = &paidAt
	}

	logging.FromContext(ctx, s.logger).Info("one-click charge",
		"offer", offer, "attempt", attempt, "status", p.Status)
	return &ChargeResult{Payment: p, New: true}, chargeErr
}

// ApplyWebhook verifies and applies a gateway event. It returns
// payment.ErrInvalidSignature for a bad signature and ErrDuplicateEvent when
// the status flip was already applied. Events for unknown payments are
// acknowledged and ignored.
func (s *PaymentService) ApplyWebhook(ctx context.Context, body []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		return err
	}
	log := s.logger.With("event_id", ev.ID, "event_type", ev.Type)

	switch ev.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutExpired,
		payment.EventIntentSucceeded, payment.EventIntentFailed:
	default:
		log.Debug("ignoring unhandled webhook event")
		return nil
	}

	p, err := s.findPayment(ctx, ev)
	if err != nil {
		return err
	}
	if p == nil {
		log.Info("webhook for unknown payment", "gateway_ref", ev.GatewayRef)
		return nil
	}

	switch ev.Type {
	case payment.EventCheckoutCompleted:
		return s.settle(ctx, p, ev, models.PaymentStatusPaid)
	case payment.EventCheckoutExpired:
		return s.settle(ctx, p, ev, models.PaymentStatusFailed)
	case payment.EventIntentSucceeded, payment.EventIntentFailed:
		// Tier payments are settled by their checkout events.
		if p.Kind == models.PaymentKindTier {
			log.Debug("ignoring payment intent event for checkout payment", "payment_id", p.ID)
			return nil
		}
		to := models.PaymentStatusPaid
		if ev.Type == payment.EventIntentFailed {
			to = models.PaymentStatusFailed
		}
		return s.settle(ctx, p, ev, to)
	}
	return nil
}

func (s *PaymentService) findPayment(ctx context.Context, ev *payment.Event) (*models.Payment, error) {
	if ev.GatewayRef != "" {
		p, err := s.repos.Payments.GetByGatewayRef(ctx, ev.GatewayRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if p != nil {
			return p, nil
		}
	}
	if ev.PaymentID == "" {
		return nil, nil
	}
	p, err := s.repos.Payments.Get(ctx, ev.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if p != nil && ev.SessionID != "" && p.SessionID != ev.SessionID {
		return nil, nil
	}
	return p, nil
}

// settle flips a payment out of pending exactly once and applies the
// matching system event to the session.
func (s *PaymentService) settle(ctx context.Context, p *models.Payment, ev *payment.Event, to models.PaymentStatus) error {
	ctx = logging.WithSessionID(context.WithoutCancel(ctx), p.SessionID)
	log := logging.FromContext(ctx, s.logger)

	var customerID, methodID string
	if to == models.PaymentStatusPaid && p.Kind == models.PaymentKindTier {
		customerID = ev.CustomerID
		if ev.PaymentIntentID != "" {
			cus, pm, err := s.gateway.ResolvePaymentMethod(ctx, ev.PaymentIntentID)
			if err != nil {
				log.Warn("failed to resolve payment method, one-click upsells will be unavailable", "error", err)
			} else {
				if cus != "" {
					customerID = cus
				}
				methodID = pm
			}
		}
	}

	unlock := s.locks.Lock(p.SessionID)
	defer unlock()

	current, err := s.repos.Payments.Get(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if current == nil {
		return nil
	}
	if current.Status == to || current.Status == models.PaymentStatusPaid {
		return ErrDuplicateEvent
	}

	now := s.now()
	reason := ev.FailureReason
	refundDue := false
	updated, err := s.repos.Sessions.Update(ctx, current.SessionID, func(sess *models.Session) (*repository.TurnWrites, error) {
		reason, refundDue = ev.FailureReason, false
		if current.Kind == models.PaymentKindTier {
			switch {
			case to == models.PaymentStatusPaid && sess.PaymentStatus == models.PaymentStatusPaid:
				// A second tier was captured for an already paid session.
				// It is recorded as paid so the capture stays visible.
				refundDue = true
				reason = refundDueReason
			case to == models.PaymentStatusPaid:
				if customerID != "" && sess.GatewayCustomerID == "" {
					sess.GatewayCustomerID = customerID
				}
				if methodID != "" && sess.PaymentMethodID == "" {
					sess.PaymentMethodID = methodID
				}
				s.engine.PaymentConfirmed(sess)
			case to == models.PaymentStatusFailed:
				s.engine.PaymentFailed(sess, ev.FailureReason)
			}
		}
		return &repository.TurnWrites{
			PaymentChanges: []repository.PaymentStatusChange{{
				PaymentID:     current.ID,
				From:          current.Status,
				To:            to,
				FailureReason: reason,
				At:            now,
			}},
		}, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			log.Info("webhook for expired session", "payment_id", current.ID)
			return nil
		}
		return storeError(err)
	}

	if refundDue {
		log.Error("duplicate tier payment captured, refund required",
			"payment_id", current.ID, "tier", current.Tier, "amount_cents", current.AmountCents,
			"gateway_ref", current.GatewayRef, "payment_intent_id", ev.PaymentIntentID)
		return nil
	}
	log.Info("payment settled", "payment_id", current.ID, "kind", current.Kind, "from", current.Status, "to", to)
	if to == models.PaymentStatusPaid {
		current.Status = to
		s.trackConversion(ctx, updated, current, now)
	}
	return nil
}

func (s *PaymentService) trackConversion(ctx context.Context, sess *models.Session, p *models.Payment, at time.Time) {
	item := p.Tier
	if p.Kind == models.PaymentKindUpsell {
		item = string(p.OfferType)
	}
	s.sinks.TrackConversion(ctx, notify.Conversion{
		SessionID:   sess.ID,
		PaymentID:   p.ID,
		Kind:        p.Kind,
		Item:        item,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		UTMSource:   sess.UTMSource,
		UTMCampaign: sess.UTMCampaign,
		ClickID:     sess.ClickID,
		At:          at,
	})
}

func withQuery(base, key, value string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid checkout url: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
