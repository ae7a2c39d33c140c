// Package conversation implements the intake phase machine: it classifies a
// visitor turn, applies the (phase, intent) transition table, and appends the
// assistant batch to the session history.
//
// The engine mutates the session it is given and reports side effects on the
// Outcome. It holds no per-session state and does no locking or persistence;
// callers run it inside a SessionStore update and serialize turns per session.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/prayerline/internal/classifier"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
)

// Config holds the engine's tunables.
type Config struct {
	DeepeningTurns      int
	EscalationThreshold int
	Currency            string
}

// EffectKind names a side effect requested by a turn.
type EffectKind string

const (
	EffectCaptureEmailLead EffectKind = "capture_email_lead"
	EffectLogIntake        EffectKind = "log_intake"
	EffectCheckout         EffectKind = "checkout"
)

// Effect is a side effect the caller executes after the transition.
type Effect struct {
	Kind EffectKind
	Tier string // EffectCheckout only
}

// Input is one visitor turn. Bucket and Tier carry structured selections.
type Input struct {
	Text   string
	Bucket models.Bucket
	Tier   string
}

// Outcome describes one applied turn.
type Outcome struct {
	From      models.Phase
	Phase     models.Phase
	Intent    models.Intent
	Messages  []string
	Effects   []Effect
	Intention *models.PrayerIntention
	Closed    bool
	// Rejected is set when the session was already closed. Nothing was
	// changed and nothing needs persisting.
	Rejected bool
}

// HasEffect reports whether the turn requested kind.
func (o *Outcome) HasEffect(kind EffectKind) bool {
	for _, e := range o.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Engine is the intake phase machine.
type Engine struct {
	classifier classifier.Classifier
	composer   Composer
	template   Composer
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an engine. A nil composer uses the fixed templates.
func New(c classifier.Classifier, composer Composer, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DeepeningTurns < 1 {
		cfg.DeepeningTurns = 3
	}
	if cfg.EscalationThreshold < 1 {
		cfg.EscalationThreshold = 3
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if composer == nil {
		composer = TemplateComposer{}
	}
	return &Engine{
		classifier: c,
		composer:   composer,
		template:   TemplateComposer{},
		cfg:        cfg,
		logger:     logger.With("component", "conversation"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start initializes a new session and emits the greeting.
func (e *Engine) Start(s *models.Session) *Outcome {
	s.Phase = models.PhaseGreeting
	if s.Bucket == "" {
		s.Bucket = models.BucketUnset
	}
	if s.PaymentStatus == "" {
		s.PaymentStatus = models.PaymentStatusNone
	}

	out := &Outcome{From: models.PhaseGreeting, Intent: models.IntentContinue}
	next, _, _ := Next(models.PhaseGreeting, models.IntentContinue)
	s.Phase = next
	e.say(s, out, greetingBatch()...)
	out.Phase = s.Phase
	return out
}

// Advance applies one visitor turn to s.
func (e *Engine) Advance(ctx context.Context, s *models.Session, in Input) *Outcome {
	out := &Outcome{From: s.Phase}
	log := logging.FromContext(ctx, e.logger)

	if s.Closed() {
		out.Phase = s.Phase
		out.Messages = []string{msgClosed}
		out.Closed = true
		out.Rejected = true
		return out
	}

	text := strings.TrimSpace(in.Text)
	e.record(s, userContent(ctx, in, text))

	intent := e.resolveIntent(ctx, s, in, text)
	out.Intent = intent

	switch intent {
	case models.IntentCrisis:
		s.CrisisFlag = true
		e.say(s, out, crisisBatch...)

	case models.IntentInappropriate:
		s.InappropriateCount++
		if s.InappropriateCount >= e.cfg.EscalationThreshold {
			s.Phase = models.PhaseInappropriateEscalation
			e.say(s, out, escalationBatch...)
			log.Info("session escalated", "from", out.From, "inappropriate_count", s.InappropriateCount)
		} else {
			e.say(s, out, redirect(s.Phase)...)
		}

	default:
		e.transition(ctx, s, in, text, intent, out)
	}

	out.Phase = s.Phase
	out.Closed = s.Closed()
	log.Debug("turn applied", "from", out.From, "intent", intent, "to", out.Phase)
	return out
}

// resolveIntent maps structured input directly and classifies free text.
// The result is always in the phase's legal set.
func (e *Engine) resolveIntent(ctx context.Context, s *models.Session, in Input, text string) models.Intent {
	legal := LegalIntents(s.Phase)
	req := classifier.Request{
		Phase:    string(s.Phase),
		Bucket:   s.Bucket,
		Legal:    legal,
		Fallback: models.IntentContinue,
		History:  s.History[:len(s.History)-1],
		Input:    text,
	}

	var intent models.Intent
	switch {
	case in.Bucket != "":
		intent = models.IntentSelectBucket
	case in.Tier != "":
		intent = models.IntentSelectTier
	case text == "":
		intent = models.IntentContinue
	default:
		intent = e.classifier.Classify(ctx, req)
	}

	if !req.Allows(intent) {
		return models.IntentContinue
	}
	return intent
}

func (e *Engine) transition(ctx context.Context, s *models.Session, in Input, text string, intent models.Intent, out *Outcome) {
	next, _, ok := Next(s.Phase, intent)
	if !ok {
		next, intent = s.Phase, models.IntentContinue
	}

	switch s.Phase {
	case models.PhaseGreeting:
		s.Phase = next
		e.say(s, out, askName())

	case models.PhaseAwaitName:
		if intent != models.IntentProvideName {
			e.say(s, out, clarify(s.Phase)...)
			return
		}
		name := ExtractName(text)
		if name == "" {
			e.say(s, out, askNameAgain())
			return
		}
		s.UserName = name
		s.Phase = next
		e.say(s, out, askBucket(name)...)

	case models.PhaseAwaitBucket:
		if intent != models.IntentSelectBucket {
			e.say(s, out, clarify(s.Phase)...)
			return
		}
		bucket := in.Bucket
		if bucket == "" {
			bucket = classifier.MatchBucket(text)
		}
		if !bucket.Valid() {
			e.say(s, out, askBucketAgain())
			return
		}
		s.Bucket = bucket
		s.Phase = next
		e.say(s, out, askEmail(bucket)...)

	case models.PhaseAwaitEmail:
		switch intent {
		case models.IntentProvideEmail:
			email, ok := ExtractEmail(text)
			if !ok {
				e.say(s, out, askEmailAgain())
				return
			}
			s.UserEmail = &email
			s.Phase = next
			out.Effects = append(out.Effects, Effect{Kind: EffectCaptureEmailLead})
			e.say(s, out, emailAccepted(), deepeningQuestion(0))
		case models.IntentDeclineEmail:
			s.Phase = next
			e.say(s, out, emailSkipped(), deepeningQuestion(0))
		default:
			e.say(s, out, clarify(s.Phase)...)
		}

	case models.PhaseDeepening:
		if intent != models.IntentShareDetail {
			e.say(s, out, "I'm sorry, I didn't quite follow.", deepeningQuestion(s.DeepeningTurns))
			return
		}
		e.recordDetail(s, text)
		s.DeepeningTurns++
		if s.DeepeningTurns < e.cfg.DeepeningTurns {
			e.say(s, out, deepeningQuestion(s.DeepeningTurns))
			return
		}
		s.Phase = models.PhaseComposingPrayer
		prayer := e.compose(ctx, s, 0)
		e.say(s, out, composingIntro(), prayer, confirmPrompt())

	case models.PhaseComposingPrayer:
		switch intent {
		case models.IntentAffirm:
			s.Phase = next
			e.say(s, out, confirmFinal())
		case models.IntentRevise:
			prayer := e.compose(ctx, s, e.revisions(s))
			e.say(s, out, revisionIntro(), prayer, confirmPrompt())
		case models.IntentProvideOwnPrayer:
			own := RedactPrices(ExtractOwnPrayer(text))
			if len(strings.Fields(own)) < constants.OwnPrayerMinWords {
				e.say(s, out, askOwnPrayerText())
				return
			}
			s.PrayerText = &own
			s.PrayerSource = models.PrayerSourceUser
			s.Phase = next
			e.say(s, out, confirmOwnPrompt())
		default:
			e.say(s, out, clarify(s.Phase)...)
		}

	case models.PhaseConfirmingPrayer:
		switch intent {
		case models.IntentAffirm:
			s.Phase = next
			s.ReadyForPayment = true
			out.Intention = intentionFor(s)
			out.Effects = append(out.Effects, Effect{Kind: EffectLogIntake})
			tiers := constants.ListTiersWithS3(ctx)
			e.say(s, out, paymentOfferBatch(s.UserName, tiers, e.cfg.Currency)...)
		case models.IntentRevise:
			s.Phase = next
			prayer := e.compose(ctx, s, e.revisions(s))
			e.say(s, out, revisionIntro(), prayer, confirmPrompt())
		default:
			e.say(s, out, clarify(s.Phase)...)
		}

	case models.PhasePaymentOffer:
		switch intent {
		case models.IntentSelectTier:
			if s.PaymentStatus == models.PaymentStatusPaid {
				e.say(s, out, alreadyPaidMessage())
				return
			}
			name := constants.NormalizeTierName(in.Tier)
			if name == "" {
				name = ExtractTier(ctx, text)
			}
			tier, ok := constants.GetTierWithS3(ctx, name)
			if !ok {
				e.say(s, out, msgAskTierAgain)
				return
			}
			out.Effects = append(out.Effects, Effect{Kind: EffectCheckout, Tier: tier.Name})
			e.say(s, out, checkoutMessage(tier))
		case models.IntentDecline:
			e.say(s, out, offerDeclined())
		default:
			e.say(s, out, clarify(s.Phase)...)
		}

	case models.PhasePaid:
		e.say(s, out, msgPaidThanks)
	}
}

// recordDetail stores a deepening answer by its position.
func (e *Engine) recordDetail(s *models.Session, text string) {
	text = strings.TrimSpace(text)
	switch s.DeepeningTurns {
	case 0:
		name, rel := ExtractPerson(text, s.UserName)
		s.PersonName = name
		s.Relationship = rel
		if name == nil && rel == nil {
			s.Situation = models.StringPtr(text)
		}
	case 1:
		s.Situation = appendDetail(s.Situation, text)
	case 2:
		s.Hope = models.StringPtr(text)
	default:
		s.Situation = appendDetail(s.Situation, text)
	}
}

func appendDetail(existing *string, text string) *string {
	if existing == nil || *existing == "" {
		return models.StringPtr(text)
	}
	return models.StringPtr(strings.TrimRight(*existing, ". ") + ". " + text)
}

// compose writes the prayer onto the session and returns it. Composer
// failures and drafts that mention money fall back to the template.
func (e *Engine) compose(ctx context.Context, s *models.Session, revision int) string {
	req := PrayerRequestFor(s, revision)
	text, err := e.composer.Compose(ctx, req)
	switch {
	case err != nil:
		logging.FromContext(ctx, e.logger).Warn("prayer composer failed, using template", "error", err)
		text, _ = e.template.Compose(ctx, req)
	case strings.TrimSpace(text) == "":
		text, _ = e.template.Compose(ctx, req)
	case ContainsPrice(text):
		logging.FromContext(ctx, e.logger).Warn("composed prayer mentioned a price, using template")
		text, _ = e.template.Compose(ctx, req)
	}
	text = RedactPrices(strings.TrimSpace(text))
	s.PrayerText = &text
	s.PrayerSource = models.PrayerSourceModel
	return text
}

// revisions counts prayers already shown in this session.
func (e *Engine) revisions(s *models.Session) int {
	n := 0
	for _, m := range s.History {
		if m.Role == models.RoleAssistant && (m.Content == composingIntro() || m.Content == revisionIntro()) {
			n++
		}
	}
	return n
}

// PaymentConfirmed applies the payment_confirmed system event. Repeats are
// no-ops.
func (e *Engine) PaymentConfirmed(s *models.Session) *Outcome {
	out := &Outcome{From: s.Phase}
	if s.PaymentStatus != models.PaymentStatusPaid {
		s.PaymentStatus = models.PaymentStatusPaid
		if s.Phase == models.PhasePaymentOffer {
			s.Phase = models.PhasePaid
			e.say(s, out, paidBatch(s.UserName)...)
		}
	}
	out.Phase = s.Phase
	out.Closed = s.Closed()
	return out
}

// PaymentFailed applies the payment_failed system event. The phase stays at
// payment_offer and a paid session is left alone.
func (e *Engine) PaymentFailed(s *models.Session, reason string) *Outcome {
	out := &Outcome{From: s.Phase}
	if s.PaymentStatus != models.PaymentStatusPaid {
		s.PaymentStatus = models.PaymentStatusFailed
		if s.Phase == models.PhasePaymentOffer {
			e.say(s, out, paymentFailedBatch(reason)...)
		}
	}
	out.Phase = s.Phase
	out.Closed = s.Closed()
	return out
}

// CheckoutPending records that a checkout was opened for the session.
func (e *Engine) CheckoutPending(s *models.Session) {
	if s.PaymentStatus != models.PaymentStatusPaid {
		s.PaymentStatus = models.PaymentStatusPending
	}
}

// CheckoutUnavailable tells the visitor the gateway could not be reached.
func (e *Engine) CheckoutUnavailable(s *models.Session, out *Outcome) {
	e.say(s, out, checkoutUnavailable())
}

// AlreadyPaid tells the visitor the offering was received.
func (e *Engine) AlreadyPaid(s *models.Session, out *Outcome) {
	e.say(s, out, alreadyPaidMessage())
}

// say appends assistant messages in the session's current phase, applying
// the price guard.
func (e *Engine) say(s *models.Session, out *Outcome, texts ...string) {
	now := e.now()
	for _, t := range texts {
		t = guardPrice(s.Phase, t)
		s.History = append(s.History, models.Message{
			Role:      models.RoleAssistant,
			Content:   t,
			Phase:     string(s.Phase),
			CreatedAt: now,
		})
		out.Messages = append(out.Messages, t)
	}
}

// record appends the visitor's input in the phase it answered.
func (e *Engine) record(s *models.Session, content string) {
	s.History = append(s.History, models.Message{
		Role:      models.RoleUser,
		Content:   content,
		Phase:     string(s.Phase),
		CreatedAt: e.now(),
	})
}

func userContent(ctx context.Context, in Input, text string) string {
	if text != "" {
		return text
	}
	if in.Bucket != "" {
		if label, ok := bucketLabels[in.Bucket]; ok {
			return label
		}
		return string(in.Bucket)
	}
	if in.Tier != "" {
		if t, ok := constants.GetTierWithS3(ctx, in.Tier); ok {
			return t.DisplayName
		}
		return in.Tier
	}
	return ""
}

func intentionFor(s *models.Session) *models.PrayerIntention {
	return &models.PrayerIntention{
		SessionID:    s.ID,
		Bucket:       s.Bucket,
		UserName:     s.UserName,
		PersonName:   cloneString(s.PersonName),
		Relationship: cloneString(s.Relationship),
		Situation:    cloneString(s.Situation),
		Hope:         cloneString(s.Hope),
		PrayerText:   deref(s.PrayerText),
		PrayerSource: s.PrayerSource,
		Status:       models.IntentionStatusPending,
	}
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	return models.StringPtr(*p)
}
