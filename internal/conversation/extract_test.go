package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

// ========================================
// Price Guard Tests
// ========================================

func TestContainsPrice(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"It costs $19.00", true},
		{"only £9", true},
		{"€ 39", true},
		{"39€ each", true},
		{"19 dollars", true},
		{"USD 25", true},
		{"25 usd", true},
		{"call or text 988", false},
		{"a nine-day novena", false},
		{"pray for 3 days", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ContainsPrice(tt.text); got != tt.want {
				t.Errorf("ContainsPrice(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestGuardPrice(t *testing.T) {
	text := "A candle is $9.00"
	if got := guardPrice(models.PhaseConfirmingPrayer, text); ContainsPrice(got) {
		t.Errorf("expected redaction before payment_offer, got %q", got)
	}
	if got := guardPrice(models.PhasePaymentOffer, text); got != text {
		t.Errorf("expected prices allowed in payment_offer, got %q", got)
	}
	if got := guardPrice(models.PhaseInappropriateEscalation, text); ContainsPrice(got) {
		t.Errorf("expected redaction in escalation, got %q", got)
	}
}

// ========================================
// Extraction Tests
// ========================================

func TestExtractName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Anna", "Anna"},
		{"anna", "Anna"},
		{"My name is Anna", "Anna"},
		{"hi, my name is anna marie", "Anna Marie"},
		{"I'm Tom.", "Tom"},
		{"call me Jo-Ann", "Jo-Ann"},
		{"  ", ""},
		{"12345", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractName(tt.input); got != tt.want {
				t.Errorf("ExtractName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"anna@example.com", "anna@example.com", true},
		{"sure, it's Anna@Example.com.", "anna@example.com", true},
		{"anna@", "", false},
		{"no thanks", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractEmail(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractEmail(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractPerson(t *testing.T) {
	tests := []struct {
		input   string
		wantNm  string
		wantRel string
	}{
		{"my mother Maria", "Maria", "mother"},
		{"My brother Tom", "Tom", "brother"},
		{"Tom", "Tom", ""},
		{"it's for me", "Anna", "self"},
		{"my dad", "", "father"},
		{"someone at church who is struggling", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, rel := ExtractPerson(tt.input, "Anna")
			if deref(name) != tt.wantNm || deref(rel) != tt.wantRel {
				t.Errorf("ExtractPerson(%q) = %q, %q; want %q, %q", tt.input, deref(name), deref(rel), tt.wantNm, tt.wantRel)
			}
		})
	}
}

func TestExtractTier(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		input string
		want  string
	}{
		{"the altar candle please", constants.TierAltarCandle},
		{"votive", constants.TierSmallCandle},
		{"I'd like the novena", constants.TierNovena},
		{"the altar one", constants.TierAltarCandle},
		{"number 2", constants.TierAltarCandle},
		{"the first", constants.TierSmallCandle},
		{"altar or novena", ""},
		{"whatever", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExtractTier(ctx, tt.input); got != tt.want {
				t.Errorf("ExtractTier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractOwnPrayer(t *testing.T) {
	got := ExtractOwnPrayer("Here is my prayer: Lord, keep my family safe.")
	if got != "Lord, keep my family safe." {
		t.Errorf("got %q", got)
	}
}

// ========================================
// Composer Tests
// ========================================

func TestTemplatePrayer(t *testing.T) {
	req := PrayerRequest{
		UserName:   "Anna",
		Bucket:     models.BucketHealing,
		PersonName: "Maria",
		Situation:  "she has surgery on Friday.",
		Hope:       "a full recovery",
	}
	first := templatePrayer(req)
	req.Revision = 1
	second := templatePrayer(req)

	if first == second {
		t.Error("revisions should vary the text")
	}
	for _, want := range []string{"Anna", "Maria", "surgery on Friday", "a full recovery", "Amen."} {
		if !strings.Contains(first, want) {
			t.Errorf("prayer missing %q: %s", want, first)
		}
	}
}
