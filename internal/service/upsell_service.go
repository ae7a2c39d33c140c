package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/notify"
	"github.com/jmylchreest/prayerline/internal/payment"
	"github.com/jmylchreest/prayerline/internal/repository"
	"github.com/jmylchreest/prayerline/internal/upsell"
)

// UpsellView is the response for an upsell chain.
type UpsellView struct {
	Chain         models.UpsellChain
	Phase         models.UpsellPhase
	Messages      []string
	PurchaseTypes []models.PurchaseType
	Complete      bool
	Stale         bool
}

// UpsellService runs the post-payment offer chains.
type UpsellService struct {
	repos    *repository.Repositories
	engine   *upsell.Engine
	payments *PaymentService
	sinks    notify.Sinks
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewUpsellService creates a new upsell service.
func NewUpsellService(
	repos *repository.Repositories,
	engine *upsell.Engine,
	payments *PaymentService,
	sinks notify.Sinks,
	locks *keyedMutex,
	logger *slog.Logger,
) *UpsellService {
	return &UpsellService{
		repos:    repos,
		engine:   engine,
		payments: payments,
		sinks:    sinks,
		locks:    locks,
		logger:   logger.With("component", "upsell_service"),
	}
}

// Start begins a chain. Starting a chain that already exists returns its
// current state.
func (s *UpsellService) Start(ctx context.Context, sessionID string, chain models.UpsellChain) (*UpsellView, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()
	ctx = logging.WithSessionID(context.WithoutCancel(ctx), sessionID)

	existing, prior, err := s.load(ctx, sessionID, chain)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return viewOf(existing, trailingBatch(existing.History)), nil
	}

	var view *UpsellView
	_, err = s.repos.Sessions.Update(ctx, sessionID, func(sess *models.Session) (*repository.TurnWrites, error) {
		u := &models.UpsellSession{OriginalSessionID: sess.ID, Chain: chain}
		out, err := s.engine.Start(ctx, u, visitorOf(sess), prior)
		if err != nil {
			return nil, err
		}
		view = viewOf(u, out.Messages)
		return &repository.TurnWrites{Upsell: u}, nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	logging.FromContext(ctx, s.logger).Info("upsell started", "chain", chain)
	return view, nil
}

// Act applies an action or free-text reply. A chain that was not started is
// started first.
func (s *UpsellService) Act(ctx context.Context, sessionID string, chain models.UpsellChain, in upsell.Input) (*UpsellView, error) {
	if in.Action != "" && !upsell.ValidAction(in.Action) {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, in.Action)
	}
	if len(in.Text) > constants.MaxMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, constants.MaxMessageLength)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.TurnTimeout)
	defer cancel()
	ctx = logging.WithSessionID(ctx, sessionID)
	log := logging.FromContext(ctx, s.logger)

	existing, prior, err := s.load(ctx, sessionID, chain)
	if err != nil {
		return nil, err
	}

	var view *UpsellView
	var conversion *models.Payment
	updated, err := s.repos.Sessions.Update(ctx, sessionID, func(sess *models.Session) (*repository.TurnWrites, error) {
		conversion = nil
		v := visitorOf(sess)
		var messages []string

		u := existing
		if u == nil {
			u = &models.UpsellSession{OriginalSessionID: sess.ID, Chain: chain}
			started, err := s.engine.Start(ctx, u, v, prior)
			if err != nil {
				return nil, err
			}
			messages = append(messages, started.Messages...)
		} else {
			u = u.Clone()
		}

		out, err := s.engine.Step(ctx, u, v, in)
		if err != nil {
			return nil, err
		}
		writes := &repository.TurnWrites{Upsell: u}
		if out.Crisis {
			sess.CrisisFlag = true
		}

		if out.Charge != nil {
			res, err := s.payments.ChargeOneClick(ctx, sess, out.Charge.Offer, out.Charge.AmountCents)
			switch {
			case res != nil && res.Payment.Status != models.PaymentStatusFailed:
				s.engine.ChargeSucceeded(ctx, u, v, out)
				if res.New {
					writes.NewPayments = append(writes.NewPayments, res.Payment)
					if res.Payment.Status == models.PaymentStatusPaid {
						conversion = res.Payment
					}
				}
			case errors.Is(err, ErrStorageUnavailable):
				return nil, err
			default:
				s.engine.ChargeFailed(ctx, u, out, chargeFailureReason(err))
				if res != nil && res.New {
					writes.NewPayments = append(writes.NewPayments, res.Payment)
				}
				log.Info("one-click charge failed", "offer", out.Charge.Offer, "error", err)
			}
		}

		view = viewOf(u, append(messages, out.Messages...))
		view.Stale = out.Stale
		return writes, nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	if conversion != nil {
		s.payments.trackConversion(ctx, updated, conversion, s.payments.now())
	}
	return view, nil
}

// State returns a chain's current state.
func (s *UpsellService) State(ctx context.Context, sessionID string, chain models.UpsellChain) (*UpsellView, error) {
	sess, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	u, err := s.repos.Upsells.Get(ctx, sessionID, chain)
	if err != nil {
		return nil, storeError(err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: chain %d not started", ErrUpsellLocked, chain)
	}
	return viewOf(u, trailingBatch(u.History)), nil
}

// load checks the chain's preconditions and returns its record (nil if not
// started) and, for chain two, the chain one snapshot.
func (s *UpsellService) load(ctx context.Context, sessionID string, chain models.UpsellChain) (*models.UpsellSession, *models.UpsellOutcome, error) {
	c, ok := upsell.ChainFor(chain)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown chain %d", ErrInvalidInput, chain)
	}
	sess, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	if sess.PaymentStatus != models.PaymentStatusPaid {
		return nil, nil, fmt.Errorf("%w: session is not paid", ErrUpsellLocked)
	}

	var prior *models.UpsellOutcome
	if c.Number == models.UpsellChainTwo {
		first, err := s.repos.Upsells.Get(ctx, sessionID, models.UpsellChainOne)
		if err != nil {
			return nil, nil, storeError(err)
		}
		one, _ := upsell.ChainFor(models.UpsellChainOne)
		if first == nil || !one.Terminal(first.Phase) {
			return nil, nil, fmt.Errorf("%w: first offer chain is not complete", ErrUpsellLocked)
		}
		snap := first.Outcome()
		prior = &snap
	}

	existing, err := s.repos.Upsells.Get(ctx, sessionID, chain)
	if err != nil {
		return nil, nil, storeError(err)
	}
	return existing, prior, nil
}

func visitorOf(sess *models.Session) upsell.Visitor {
	return upsell.Visitor{Name: sess.UserName, Bucket: sess.Bucket}
}

func viewOf(u *models.UpsellSession, messages []string) *UpsellView {
	c, _ := upsell.ChainFor(u.Chain)
	return &UpsellView{
		Chain:         u.Chain,
		Phase:         u.Phase,
		Messages:      messages,
		PurchaseTypes: append([]models.PurchaseType(nil), u.PurchaseTypes...),
		Complete:      c != nil && c.Terminal(u.Phase),
	}
}

// trailingBatch returns the assistant messages after the last user entry.
func trailingBatch(history []models.Message) []string {
	start := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			start = i + 1
			break
		}
	}
	var out []string
	for _, m := range history[start:] {
		if m.Role == models.RoleAssistant {
			out = append(out, m.Content)
		}
	}
	return out
}

func chargeFailureReason(err error) string {
	switch {
	case errors.Is(err, payment.ErrNoPaymentMethod):
		return "no saved card was found for this order"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return "the payment service is temporarily unavailable"
	case errors.Is(err, payment.ErrDeclined):
		return "the card was declined"
	default:
		return ""
	}
}
