package conversation

import (
	"regexp"

	"github.com/jmylchreest/prayerline/internal/models"
)

// pricePattern matches currency amounts: symbols before or after a number,
// ISO codes, and spelled-out currency words.
var pricePattern = regexp.MustCompile(`(?i)(?:[$£€¥]\s?\d[\d,]*(?:\.\d+)?|\d[\d,]*(?:\.\d+)?\s?(?:[$£€¥]|(?:usd|eur|gbp|dollars?|euros?|pounds?|bucks|cents?)\b)|\b(?:usd|eur|gbp)\s?\d[\d,]*(?:\.\d+)?)`)

const redacted = "[…]"

// ContainsPrice reports whether text mentions a currency amount.
func ContainsPrice(text string) bool {
	return pricePattern.MatchString(text)
}

// RedactPrices replaces currency amounts in text.
func RedactPrices(text string) string {
	return pricePattern.ReplaceAllString(text, redacted)
}

// mayShowPrice reports whether messages emitted in phase p may carry prices.
func mayShowPrice(p models.Phase) bool {
	return p != models.PhaseInappropriateEscalation && Rank(p) >= Rank(models.PhasePaymentOffer)
}

// guardPrice applies the price guard for a message emitted in phase p.
func guardPrice(p models.Phase, text string) string {
	if mayShowPrice(p) {
		return text
	}
	return RedactPrices(text)
}
