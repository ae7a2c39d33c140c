package upsell

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/prayerline/internal/classifier"
	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/conversation"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
)

// Visitor is read-only context from the original session used in the copy.
type Visitor struct {
	Name   string
	Bucket models.Bucket
}

// Input is one upsell turn. Action comes from a button; Text is classified
// when no action is given.
type Input struct {
	Action models.Intent
	// Item picks one of several offers in the current phase.
	Item models.OfferType
	// Offer names the offer the action answers. A mismatch with the current
	// phase marks the action as stale.
	Offer models.OfferType
	Text  string
}

// Charge is a one-click charge requested by an accept.
type Charge struct {
	Offer       models.OfferType
	AmountCents int64
}

// Outcome describes one applied upsell turn.
type Outcome struct {
	Chain    models.UpsellChain
	From     models.UpsellPhase
	Phase    models.UpsellPhase
	Action   models.Intent
	Messages []string
	// Charge is set when the caller must charge before the phase advances.
	Charge   *Charge
	Complete bool
	// Stale is set for an action aimed at an offer the chain has moved past.
	Stale bool
	// Crisis is set when the reply carried self-harm language. The caller
	// flags the original session.
	Crisis bool
}

// Engine runs upsell chains.
type Engine struct {
	classifier classifier.Classifier
	currency   string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an upsell engine.
func New(c classifier.Classifier, currency string, logger *slog.Logger) *Engine {
	if currency == "" {
		currency = "usd"
	}
	return &Engine{
		classifier: c,
		currency:   currency,
		logger:     logger.With("component", "upsell"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start puts a new chain record in its first phase and emits the first offer.
// prior is the chain one snapshot for chain two; it is copied.
func (e *Engine) Start(ctx context.Context, u *models.UpsellSession, v Visitor, prior *models.UpsellOutcome) (*Outcome, error) {
	chain, ok := ChainFor(u.Chain)
	if !ok {
		return nil, fmt.Errorf("unknown upsell chain %d", u.Chain)
	}
	if prior != nil {
		snap := *prior
		snap.PurchaseTypes = append([]models.PurchaseType(nil), prior.PurchaseTypes...)
		snap.Declined = append([]models.OfferType(nil), prior.Declined...)
		u.Upsell1Outcome = &snap
	}
	u.Phase = chain.First()
	out := &Outcome{Chain: u.Chain, From: u.Phase}
	e.offer(ctx, chain, u, v, out)
	out.Phase = u.Phase
	return out, nil
}

// Step applies one action or free-text reply.
func (e *Engine) Step(ctx context.Context, u *models.UpsellSession, v Visitor, in Input) (*Outcome, error) {
	chain, ok := ChainFor(u.Chain)
	if !ok {
		return nil, fmt.Errorf("unknown upsell chain %d", u.Chain)
	}
	out := &Outcome{Chain: u.Chain, From: u.Phase, Phase: u.Phase}

	if chain.Terminal(u.Phase) {
		out.Complete = true
		out.Stale = true
		out.Messages = []string{msgComplete}
		return out, nil
	}

	step, ok := chain.Step(u.Phase)
	if !ok {
		return nil, fmt.Errorf("chain %d has no phase %q", u.Chain, u.Phase)
	}
	if in.Offer != "" && !offers(step, in.Offer) {
		logging.FromContext(ctx, e.logger).Info("stale upsell action ignored",
			"chain", u.Chain, "phase", u.Phase, "offer", in.Offer)
		out.Stale = true
		return out, nil
	}

	e.record(u, userContent(in))
	action := e.resolveAction(ctx, u, in)
	out.Action = action
	catalogue := e.catalogue(ctx, step)

	switch action {
	case models.IntentCrisis:
		out.Crisis = true
		e.say(u, out, conversation.CrisisBatch()...)
		logging.FromContext(ctx, e.logger).Info("crisis language in upsell reply", "chain", u.Chain, "phase", u.Phase)

	case models.IntentInappropriate:
		e.say(u, out, msgRedirect)

	case models.IntentAccept:
		offer, ok := pickOffer(step, in)
		if !ok {
			e.say(u, out, chooseItem(catalogue))
			break
		}
		o, ok := constants.GetOfferWithS3(ctx, offer)
		if !ok {
			return nil, fmt.Errorf("offer %q not in catalogue", offer)
		}
		out.Charge = &Charge{Offer: offer, AmountCents: o.AmountCents}

	case models.IntentDecline:
		u.Declined = append(u.Declined, step.Offers...)
		next, _ := chain.Next(u.Phase, action)
		u.Phase = next
		e.say(u, out, msgDeclined)
		e.offer(ctx, chain, u, v, out)

	default:
		e.say(u, out, moreInfoBatch(catalogue, e.currency)...)
	}

	out.Phase = u.Phase
	out.Complete = chain.Terminal(u.Phase)
	return out, nil
}

// ChargeSucceeded records the purchase after the caller's charge was accepted
// by the gateway and advances the chain.
func (e *Engine) ChargeSucceeded(ctx context.Context, u *models.UpsellSession, v Visitor, out *Outcome) {
	chain, ok := ChainFor(u.Chain)
	if !ok || out.Charge == nil {
		return
	}
	purchase := out.Charge.Offer.PurchaseType()
	if !u.HasPurchase(purchase) {
		u.PurchaseTypes = append(u.PurchaseTypes, purchase)
	}
	if o, ok := constants.GetOfferWithS3(ctx, out.Charge.Offer); ok {
		e.say(u, out, acceptedMessage(o))
	}
	if next, ok := chain.Next(u.Phase, models.IntentAccept); ok {
		u.Phase = next
	}
	e.offer(ctx, chain, u, v, out)
	out.Phase = u.Phase
	out.Complete = chain.Terminal(u.Phase)
}

// ChargeFailed keeps the phase at the offer and tells the visitor.
func (e *Engine) ChargeFailed(ctx context.Context, u *models.UpsellSession, out *Outcome, reason string) {
	if out.Charge == nil {
		return
	}
	o, ok := constants.GetOfferWithS3(ctx, out.Charge.Offer)
	if !ok {
		o = constants.Offer{Type: out.Charge.Offer, DisplayName: string(out.Charge.Offer)}
	}
	e.say(u, out, chargeFailedBatch(o, reason)...)
	out.Phase = u.Phase
}

// resolveAction maps a button directly and classifies free text, falling back
// to more_info. Text is screened for crisis and abuse even when a button came
// with it, and those labels win over the button.
func (e *Engine) resolveAction(ctx context.Context, u *models.UpsellSession, in Input) models.Intent {
	button := ValidAction(in.Action)
	text := strings.TrimSpace(in.Text)
	if text == "" {
		if button {
			return in.Action
		}
		return models.IntentMoreInfo
	}
	req := classifier.Request{
		Phase:    fmt.Sprintf("upsell%d:%s", u.Chain, u.Phase),
		Legal:    TextIntents,
		Fallback: models.IntentMoreInfo,
		History:  u.History[:len(u.History)-1],
		Input:    text,
	}
	intent := e.classifier.Classify(ctx, req)
	switch {
	case intent == models.IntentCrisis || intent == models.IntentInappropriate:
		return intent
	case button:
		return in.Action
	case !req.Allows(intent):
		return models.IntentMoreInfo
	}
	return intent
}

// offer emits the offers for the current phase, or the closing line.
func (e *Engine) offer(ctx context.Context, chain *Chain, u *models.UpsellSession, v Visitor, out *Outcome) {
	if chain.Terminal(u.Phase) {
		e.say(u, out, msgComplete)
		return
	}
	step, ok := chain.Step(u.Phase)
	if !ok {
		return
	}
	e.say(u, out, offerBatch(u.Chain, e.catalogue(ctx, step), v, u.Upsell1Outcome, e.currency)...)
}

func (e *Engine) catalogue(ctx context.Context, step Step) []constants.Offer {
	out := make([]constants.Offer, 0, len(step.Offers))
	for _, t := range step.Offers {
		if o, ok := constants.GetOfferWithS3(ctx, t); ok {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) say(u *models.UpsellSession, out *Outcome, texts ...string) {
	now := e.now()
	for _, t := range texts {
		u.History = append(u.History, models.Message{
			Role:      models.RoleAssistant,
			Content:   t,
			Phase:     string(u.Phase),
			CreatedAt: now,
		})
		out.Messages = append(out.Messages, t)
	}
}

func (e *Engine) record(u *models.UpsellSession, content string) {
	u.History = append(u.History, models.Message{
		Role:      models.RoleUser,
		Content:   content,
		Phase:     string(u.Phase),
		CreatedAt: e.now(),
	})
}

func offers(step Step, t models.OfferType) bool {
	for _, o := range step.Offers {
		if o == t {
			return true
		}
	}
	return false
}

// pickOffer chooses the accepted offer: the only one, the named item, or an
// item mentioned in the text.
func pickOffer(step Step, in Input) (models.OfferType, bool) {
	if len(step.Offers) == 1 {
		return step.Offers[0], true
	}
	if in.Item != "" && offers(step, in.Item) {
		return in.Item, true
	}
	if in.Offer != "" && offers(step, in.Offer) {
		return in.Offer, true
	}
	text := strings.ToLower(in.Text)
	var found models.OfferType
	for _, o := range step.Offers {
		if strings.Contains(text, strings.ReplaceAll(string(o), "_", " ")) {
			if found != "" {
				return "", false
			}
			found = o
		}
	}
	return found, found != ""
}

func userContent(in Input) string {
	if text := strings.TrimSpace(in.Text); text != "" {
		return text
	}
	if in.Item != "" {
		return string(in.Action) + ":" + string(in.Item)
	}
	return string(in.Action)
}
