// Package upsell implements the post-payment offer chains. Both chains share
// one Engine; a Chain supplies the phases, the offers made in each phase and
// the (phase, action) transition table.
package upsell

import (
	"fmt"

	"github.com/jmylchreest/prayerline/internal/models"
)

// Actions are the closed set accepted by every offer phase.
var Actions = []models.Intent{models.IntentAccept, models.IntentDecline, models.IntentMoreInfo}

// TextIntents are the labels free text may classify to. Crisis and
// inappropriate replies never move the chain.
var TextIntents = append([]models.Intent{models.IntentCrisis, models.IntentInappropriate}, Actions...)

// ValidAction reports whether a is an upsell action.
func ValidAction(a models.Intent) bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// Step is one offer phase.
type Step struct {
	Phase models.UpsellPhase
	// Offers made in this phase. More than one means the visitor picks an item.
	Offers []models.OfferType
}

// Chain defines one upsell chain.
type Chain struct {
	Number models.UpsellChain
	Steps  []Step
	Table  map[models.UpsellPhase]map[models.Intent]models.UpsellPhase
}

// ChainOne offers a candle, then a medal or pendant.
var ChainOne = &Chain{
	Number: models.UpsellChainOne,
	Steps: []Step{
		{Phase: models.UpsellPhaseOfferCandle, Offers: []models.OfferType{models.OfferCandle}},
		{Phase: models.UpsellPhaseOfferMedalOrPendant, Offers: []models.OfferType{models.OfferMedal, models.OfferPendant}},
	},
	Table: map[models.UpsellPhase]map[models.Intent]models.UpsellPhase{
		models.UpsellPhaseOfferCandle: {
			models.IntentAccept:   models.UpsellPhaseOfferMedalOrPendant,
			models.IntentDecline:  models.UpsellPhaseOfferMedalOrPendant,
			models.IntentMoreInfo: models.UpsellPhaseOfferCandle,
		},
		models.UpsellPhaseOfferMedalOrPendant: {
			models.IntentAccept:   models.UpsellPhaseComplete,
			models.IntentDecline:  models.UpsellPhaseComplete,
			models.IntentMoreInfo: models.UpsellPhaseOfferMedalOrPendant,
		},
		models.UpsellPhaseComplete: {},
	},
}

// ChainTwo offers the protection pendant. It starts once chain one is complete.
var ChainTwo = &Chain{
	Number: models.UpsellChainTwo,
	Steps: []Step{
		{Phase: models.UpsellPhaseOfferProtectionPendant, Offers: []models.OfferType{models.OfferProtectionPendant}},
	},
	Table: map[models.UpsellPhase]map[models.Intent]models.UpsellPhase{
		models.UpsellPhaseOfferProtectionPendant: {
			models.IntentAccept:   models.UpsellPhaseComplete,
			models.IntentDecline:  models.UpsellPhaseComplete,
			models.IntentMoreInfo: models.UpsellPhaseOfferProtectionPendant,
		},
		models.UpsellPhaseComplete: {},
	},
}

// ChainFor returns the definition for n.
func ChainFor(n models.UpsellChain) (*Chain, bool) {
	switch n {
	case models.UpsellChainOne:
		return ChainOne, true
	case models.UpsellChainTwo:
		return ChainTwo, true
	default:
		return nil, false
	}
}

// First returns the phase a new chain starts in.
func (c *Chain) First() models.UpsellPhase {
	return c.Steps[0].Phase
}

// Step returns the offer step for phase p.
func (c *Chain) Step(p models.UpsellPhase) (Step, bool) {
	for _, s := range c.Steps {
		if s.Phase == p {
			return s, true
		}
	}
	return Step{}, false
}

// Next looks up the transition for (phase, action).
func (c *Chain) Next(p models.UpsellPhase, action models.Intent) (models.UpsellPhase, bool) {
	next, ok := c.Table[p][action]
	return next, ok
}

// Terminal reports whether p has no outbound edges.
func (c *Chain) Terminal(p models.UpsellPhase) bool {
	row, ok := c.Table[p]
	return ok && len(row) == 0
}

func (c *Chain) rank(p models.UpsellPhase) int {
	if p == models.UpsellPhaseComplete {
		return len(c.Steps)
	}
	for i, s := range c.Steps {
		if s.Phase == p {
			return i
		}
	}
	return -1
}

// Validate checks the table is total over Actions for every offer phase,
// forward-only, and ends in complete.
func (c *Chain) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("chain %d has no steps", c.Number)
	}
	if !c.Terminal(models.UpsellPhaseComplete) {
		return fmt.Errorf("chain %d: %q must be terminal", c.Number, models.UpsellPhaseComplete)
	}
	for _, s := range c.Steps {
		if len(s.Offers) == 0 {
			return fmt.Errorf("chain %d: phase %q makes no offer", c.Number, s.Phase)
		}
		row, ok := c.Table[s.Phase]
		if !ok {
			return fmt.Errorf("chain %d: phase %q has no row", c.Number, s.Phase)
		}
		for _, a := range Actions {
			next, ok := row[a]
			if !ok {
				return fmt.Errorf("chain %d: %s/%s unmapped", c.Number, s.Phase, a)
			}
			if c.rank(next) < 0 {
				return fmt.Errorf("chain %d: %s/%s targets unknown phase %q", c.Number, s.Phase, a, next)
			}
			if c.rank(next) < c.rank(s.Phase) {
				return fmt.Errorf("chain %d: %s/%s moves backward", c.Number, s.Phase, a)
			}
		}
		if row[models.IntentMoreInfo] != s.Phase {
			return fmt.Errorf("chain %d: more_info must stay in %q", c.Number, s.Phase)
		}
	}
	return nil
}

func init() {
	for _, c := range []*Chain{ChainOne, ChainTwo} {
		if err := c.Validate(); err != nil {
			panic("upsell: " + err.Error())
		}
	}
}
