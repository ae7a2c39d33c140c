package conversation

import (
	"testing"

	"github.com/jmylchreest/prayerline/internal/models"
)

// ========================================
// Transition Table Tests
// ========================================

func TestValidateTable(t *testing.T) {
	if err := validateTable(); err != nil {
		t.Fatalf("validateTable() error = %v", err)
	}
}

func TestValidateTable_RejectsBackwardEdge(t *testing.T) {
	orig := transitions[models.PhasePaymentOffer][models.IntentDecline]
	transitions[models.PhasePaymentOffer][models.IntentDecline] = edge{next: models.PhaseAwaitName}
	defer func() { transitions[models.PhasePaymentOffer][models.IntentDecline] = orig }()

	if err := validateTable(); err == nil {
		t.Error("expected an error for a backward edge without the decline flag")
	}
}

func TestValidateTable_RejectsMissingContinue(t *testing.T) {
	orig := transitions[models.PhasePaid][models.IntentContinue]
	delete(transitions[models.PhasePaid], models.IntentContinue)
	defer func() { transitions[models.PhasePaid][models.IntentContinue] = orig }()

	if err := validateTable(); err == nil {
		t.Error("expected an error for a phase without continue")
	}
}

func TestLegalIntents(t *testing.T) {
	tests := []struct {
		phase models.Phase
		want  []models.Intent
	}{
		{
			phase: models.PhaseAwaitName,
			want:  []models.Intent{models.IntentCrisis, models.IntentInappropriate, models.IntentProvideName, models.IntentContinue},
		},
		{
			phase: models.PhaseConfirmingPrayer,
			want:  []models.Intent{models.IntentCrisis, models.IntentInappropriate, models.IntentAffirm, models.IntentRevise, models.IntentContinue},
		},
		{
			phase: models.PhaseInappropriateEscalation,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			got := LegalIntents(tt.phase)
			if len(got) != len(tt.want) {
				t.Fatalf("LegalIntents(%s) = %v, want %v", tt.phase, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("LegalIntents(%s)[%d] = %q, want %q", tt.phase, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNext_OnlyDeclineEdgesMoveBackward(t *testing.T) {
	for phase, row := range transitions {
		for intent := range row {
			next, decline, ok := Next(phase, intent)
			if !ok {
				t.Fatalf("Next(%s, %s) not found", phase, intent)
			}
			if Rank(next) < Rank(phase) && !decline {
				t.Errorf("%s/%s moves backward to %s", phase, intent, next)
			}
		}
	}

	if _, _, ok := Next(models.PhaseAwaitName, models.IntentSelectTier); ok {
		t.Error("unmapped pair should not be found")
	}
}

func TestRank(t *testing.T) {
	if Rank(models.PhaseDeepening) >= Rank(models.PhasePaymentOffer) {
		t.Error("deepening must rank below payment_offer")
	}
	if Rank("bogus") != -1 {
		t.Error("unknown phase should rank -1")
	}
}
