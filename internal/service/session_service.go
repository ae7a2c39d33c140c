package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/prayerline/internal/auth"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/conversation"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
	"github.com/jmylchreest/prayerline/internal/notify"
	"github.com/jmylchreest/prayerline/internal/repository"
)

// StartInput carries ad attribution captured when a session starts.
type StartInput struct {
	UTMSource   string
	UTMCampaign string
	ClickID     string
}

// TurnResult is the response to one conversation turn.
type TurnResult struct {
	SessionID   string
	Phase       models.Phase
	Messages    []string
	CheckoutURL string
	Closed      bool
}

// SessionService runs intake conversation turns.
type SessionService struct {
	repos    *repository.Repositories
	engine   *conversation.Engine
	payments *PaymentService
	tokens   *auth.CheckoutTokens
	sinks    notify.Sinks
	locks    *keyedMutex
	logger   *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(
	repos *repository.Repositories,
	engine *conversation.Engine,
	payments *PaymentService,
	tokens *auth.CheckoutTokens,
	sinks notify.Sinks,
	locks *keyedMutex,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		repos:    repos,
		engine:   engine,
		payments: payments,
		tokens:   tokens,
		sinks:    sinks,
		locks:    locks,
		logger:   logger.With("component", "session_service"),
	}
}

// Start creates a session and returns the greeting batch.
func (s *SessionService) Start(ctx context.Context, in StartInput) (*TurnResult, error) {
	sess := &models.Session{
		UTMSource:   truncate(in.UTMSource, 200),
		UTMCampaign: truncate(in.UTMCampaign, 200),
		ClickID:     truncate(in.ClickID, 200),
	}
	out := s.engine.Start(sess)

	if err := s.repos.Sessions.Create(context.WithoutCancel(ctx), sess); err != nil {
		return nil, storeError(err)
	}

	logging.FromContext(logging.WithSessionID(ctx, sess.ID), s.logger).Info("session started",
		"store", s.repos.Mode, "utm_source", sess.UTMSource)
	return &TurnResult{
		SessionID: sess.ID,
		Phase:     out.Phase,
		Messages:  out.Messages,
	}, nil
}

// Message applies a free-text turn.
func (s *SessionService) Message(ctx context.Context, id, text string) (*TurnResult, error) {
	if len(text) > constants.MaxMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, constants.MaxMessageLength)
	}
	return s.turn(ctx, id, conversation.Input{Text: text})
}

// SelectBucket applies a structured bucket selection.
func (s *SessionService) SelectBucket(ctx context.Context, id string, bucket models.Bucket) (*TurnResult, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", ErrInvalidInput, bucket)
	}
	return s.turn(ctx, id, conversation.Input{Bucket: bucket})
}

// Checkout applies a structured tier selection.
func (s *SessionService) Checkout(ctx context.Context, id, tier string) (*TurnResult, error) {
	name := constants.NormalizeTierName(tier)
	if _, ok := constants.GetTierWithS3(ctx, name); !ok {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, tier)
	}
	return s.turn(ctx, id, conversation.Input{Tier: name})
}

// State returns the stored session.
func (s *SessionService) State(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.repos.Sessions.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ConfirmFromReturn resolves a checkout return token to its session. It
// never changes payment state.
func (s *SessionService) ConfirmFromReturn(ctx context.Context, token string) (*models.Session, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.State(ctx, claims.SessionID)
}

// turn runs one engine step inside a store update. The per-session lock
// serializes turns, and the turn is detached from request cancellation so it
// either persists completely or not at all.
func (s *SessionService) turn(ctx context.Context, id string, in conversation.Input) (*TurnResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.TurnTimeout)
	defer cancel()
	ctx = logging.WithSessionID(ctx, id)
	log := logging.FromContext(ctx, s.logger)

	var out *conversation.Outcome
	var checkoutURL string
	updated, err := s.repos.Sessions.Update(ctx, id, func(sess *models.Session) (*repository.TurnWrites, error) {
		checkoutURL = ""
		out = s.engine.Advance(ctx, sess, in)
		if out.Rejected {
			return nil, errRejected
		}

		writes := &repository.TurnWrites{Intention: out.Intention}
		for _, eff := range out.Effects {
			if eff.Kind != conversation.EffectCheckout {
				continue
			}
			url, err := s.checkout(ctx, sess, eff.Tier, out, writes)
			if err != nil {
				return nil, err
			}
			checkoutURL = url
		}
		return writes, nil
	})
	if errors.Is(err, errRejected) {
		return &TurnResult{SessionID: id, Phase: out.Phase, Messages: out.Messages, Closed: true}, nil
	}
	if err != nil {
		err = storeError(err)
		if errors.Is(err, ErrStorageUnavailable) {
			log.Error("turn failed", "error", err)
		}
		return nil, err
	}

	s.emitEffects(ctx, updated, out)
	return &TurnResult{
		SessionID:   id,
		Phase:       out.Phase,
		Messages:    out.Messages,
		CheckoutURL: checkoutURL,
		Closed:      out.Closed,
	}, nil
}

// checkout opens the gateway checkout for a selected tier and adds its
// payment rows to the turn's writes. Gateway failures are surfaced in the
// conversation rather than failing the turn.
func (s *SessionService) checkout(ctx context.Context, sess *models.Session, tierName string, out *conversation.Outcome, writes *repository.TurnWrites) (string, error) {
	log := logging.FromContext(ctx, s.logger)

	tier, ok := constants.GetTierWithS3(ctx, tierName)
	if !ok {
		s.engine.CheckoutUnavailable(sess, out)
		return "", nil
	}
	res, err := s.payments.beginCheckout(ctx, sess, tier)
	if res != nil {
		writes.PaymentChanges = append(writes.PaymentChanges, res.Superseded...)
	}
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return "", err
		}
		log.Warn("checkout unavailable", "tier", tierName, "error", err)
		s.engine.CheckoutUnavailable(sess, out)
		return "", nil
	}
	if res.AlreadyPaid {
		s.engine.AlreadyPaid(sess, out)
		return "", nil
	}

	s.engine.CheckoutPending(sess)
	log.Info("checkout opened", "tier", tierName, "payment_id", res.Payment.ID, "attempt", res.Payment.Attempt, "reused", !res.New)
	if res.New {
		writes.NewPayments = append(writes.NewPayments, res.Payment)
	}
	return res.URL, nil
}

// emitEffects fires notifications for a committed turn.
func (s *SessionService) emitEffects(ctx context.Context, sess *models.Session, out *conversation.Outcome) {
	now := time.Now().UTC()
	for _, eff := range out.Effects {
		switch eff.Kind {
		case conversation.EffectCaptureEmailLead:
			s.sinks.CaptureEmailLead(ctx, notify.Lead{
				SessionID:   sess.ID,
				Email:       sess.Email(),
				Name:        sess.UserName,
				Bucket:      sess.Bucket,
				UTMSource:   sess.UTMSource,
				UTMCampaign: sess.UTMCampaign,
				ClickID:     sess.ClickID,
				At:          now,
			})
		case conversation.EffectLogIntake:
			rec := notify.IntakeRecord{
				SessionID:    sess.ID,
				Bucket:       sess.Bucket,
				UserName:     sess.UserName,
				PersonName:   deref(sess.PersonName),
				Relationship: deref(sess.Relationship),
				PrayerText:   deref(sess.PrayerText),
				PrayerSource: sess.PrayerSource,
				CrisisFlag:   sess.CrisisFlag,
				At:           now,
			}
			if out.Intention != nil {
				rec.IntentionID = out.Intention.ID
			}
			s.sinks.LogIntake(ctx, rec)
		}
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
