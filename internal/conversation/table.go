package conversation

import (
	"fmt"

	"github.com/jmylchreest/prayerline/internal/models"
)

// phaseRank orders the intake phases. The escalation phase is terminal and
// ranks above everything so no edge leaves it.
var phaseRank = map[models.Phase]int{
	models.PhaseGreeting:                0,
	models.PhaseAwaitName:               1,
	models.PhaseAwaitBucket:             2,
	models.PhaseAwaitEmail:              3,
	models.PhaseDeepening:               4,
	models.PhaseComposingPrayer:         5,
	models.PhaseConfirmingPrayer:        6,
	models.PhasePaymentOffer:            7,
	models.PhasePaid:                    8,
	models.PhaseInappropriateEscalation: 9,
}

// Rank returns the position of p in the intake order, or -1 if unknown.
func Rank(p models.Phase) int {
	if r, ok := phaseRank[p]; ok {
		return r
	}
	return -1
}

// edge is one (phase, intent) transition.
type edge struct {
	next models.Phase
	// decline marks the explicit backward edges.
	decline bool
}

// controlIntents are accepted in every phase that still takes input and are
// handled before the table.
var controlIntents = []models.Intent{models.IntentCrisis, models.IntentInappropriate}

// transitions is the intake state machine. deepening → composing_prayer and
// payment_offer → paid are decided by the engine (answer count and the
// payment webhook); the table lists the edge the classifier intent selects.
var transitions = map[models.Phase]map[models.Intent]edge{
	models.PhaseGreeting: {
		models.IntentContinue: {next: models.PhaseAwaitName},
	},
	models.PhaseAwaitName: {
		models.IntentProvideName: {next: models.PhaseAwaitBucket},
		models.IntentContinue:    {next: models.PhaseAwaitName},
	},
	models.PhaseAwaitBucket: {
		models.IntentSelectBucket: {next: models.PhaseAwaitEmail},
		models.IntentContinue:     {next: models.PhaseAwaitBucket},
	},
	models.PhaseAwaitEmail: {
		models.IntentProvideEmail: {next: models.PhaseDeepening},
		models.IntentDeclineEmail: {next: models.PhaseDeepening},
		models.IntentContinue:     {next: models.PhaseAwaitEmail},
	},
	models.PhaseDeepening: {
		models.IntentShareDetail: {next: models.PhaseDeepening},
		models.IntentContinue:    {next: models.PhaseDeepening},
	},
	models.PhaseComposingPrayer: {
		models.IntentAffirm:           {next: models.PhaseConfirmingPrayer},
		models.IntentRevise:           {next: models.PhaseComposingPrayer},
		models.IntentProvideOwnPrayer: {next: models.PhaseConfirmingPrayer},
		models.IntentContinue:         {next: models.PhaseComposingPrayer},
	},
	models.PhaseConfirmingPrayer: {
		models.IntentAffirm:   {next: models.PhasePaymentOffer},
		models.IntentRevise:   {next: models.PhaseComposingPrayer, decline: true},
		models.IntentContinue: {next: models.PhaseConfirmingPrayer},
	},
	models.PhasePaymentOffer: {
		models.IntentSelectTier: {next: models.PhasePaymentOffer},
		models.IntentDecline:    {next: models.PhasePaymentOffer},
		models.IntentContinue:   {next: models.PhasePaymentOffer},
	},
	models.PhasePaid: {
		models.IntentContinue: {next: models.PhasePaid},
	},
	models.PhaseInappropriateEscalation: {},
}

// legalOrder fixes the order legal intents are offered to the classifier.
var legalOrder = []models.Intent{
	models.IntentProvideName,
	models.IntentSelectBucket,
	models.IntentProvideEmail,
	models.IntentDeclineEmail,
	models.IntentShareDetail,
	models.IntentAffirm,
	models.IntentRevise,
	models.IntentProvideOwnPrayer,
	models.IntentSelectTier,
	models.IntentDecline,
	models.IntentContinue,
}

// LegalIntents returns the closed intent set for a phase, control intents
// included. A terminal phase returns nil.
func LegalIntents(p models.Phase) []models.Intent {
	row := transitions[p]
	if len(row) == 0 {
		return nil
	}
	out := append([]models.Intent(nil), controlIntents...)
	for _, intent := range legalOrder {
		if _, ok := row[intent]; ok {
			out = append(out, intent)
		}
	}
	return out
}

// Next looks up the transition for (phase, intent). ok is false for pairs the
// table does not define.
func Next(p models.Phase, intent models.Intent) (next models.Phase, decline bool, ok bool) {
	e, ok := transitions[p][intent]
	return e.next, e.decline, ok
}

func init() {
	if err := validateTable(); err != nil {
		panic("conversation: invalid transition table: " + err.Error())
	}
}

// validateTable checks every phase has a row, every non-terminal row accepts
// continue, targets exist, and edges only move forward unless flagged decline.
func validateTable() error {
	for phase := range phaseRank {
		if _, ok := transitions[phase]; !ok {
			return fmt.Errorf("phase %q has no row", phase)
		}
	}
	for phase, row := range transitions {
		if _, ok := phaseRank[phase]; !ok {
			return fmt.Errorf("row for unknown phase %q", phase)
		}
		if phase == models.PhaseInappropriateEscalation {
			if len(row) != 0 {
				return fmt.Errorf("terminal phase %q has outbound edges", phase)
			}
			continue
		}
		if _, ok := row[models.IntentContinue]; !ok {
			return fmt.Errorf("phase %q does not accept %q", phase, models.IntentContinue)
		}
		for intent, e := range row {
			if intent == models.IntentCrisis || intent == models.IntentInappropriate {
				return fmt.Errorf("phase %q maps control intent %q", phase, intent)
			}
			if _, ok := phaseRank[e.next]; !ok {
				return fmt.Errorf("%s/%s targets unknown phase %q", phase, intent, e.next)
			}
			if phaseRank[e.next] < phaseRank[phase] && !e.decline {
				return fmt.Errorf("%s/%s moves backward to %q without a decline flag", phase, intent, e.next)
			}
		}
		for _, intent := range LegalIntents(phase) {
			if intent == models.IntentCrisis || intent == models.IntentInappropriate {
				continue
			}
			if _, ok := row[intent]; !ok {
				return fmt.Errorf("phase %q offers %q with no edge", phase, intent)
			}
		}
	}
	return nil
}
