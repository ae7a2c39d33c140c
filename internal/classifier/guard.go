package classifier

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
)

var crisisPhrases = []string{
	"kill myself",
	"killing myself",
	"suicide",
	"suicidal",
	"end my life",
	"ending my life",
	"want to die",
	"wanna die",
	"hurt myself",
	"harm myself",
	"no reason to live",
	"better off dead",
}

// abusePattern matches slurs and profanity directed at the assistant. Matching
// is on whole words so "scunthorpe" style false positives stay out.
var abusePattern = regexp.MustCompile(`\b(fuck\w*|shit\w*|bitch\w*|cunt\w*|asshole\w*|dickhead\w*|bastard\w*|whore\w*|slut\w*|retard\w*|nigg\w*|fag\w*)\b`)

// DetectCrisis reports whether text contains self-harm language.
func DetectCrisis(text string) bool {
	lower := normalizeText(text)
	for _, p := range crisisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DetectAbuse reports whether text contains abusive language.
func DetectAbuse(text string) bool {
	return abusePattern.MatchString(normalizeText(text))
}

// Guard runs the deterministic crisis and abuse lexicons before delegating to
// the wrapped classifier. A lexicon match wins over the wrapped result.
type Guard struct {
	next   Classifier
	logger *slog.Logger
}

// NewGuard wraps next with the lexicon guard.
func NewGuard(next Classifier, logger *slog.Logger) *Guard {
	return &Guard{next: next, logger: logger.With("component", "classifier_guard")}
}

// Classify implements Classifier.
func (g *Guard) Classify(ctx context.Context, req Request) models.Intent {
	if req.Allows(models.IntentCrisis) && DetectCrisis(req.Input) {
		logging.FromContext(ctx, g.logger).Info("crisis language detected", "phase", req.Phase)
		return models.IntentCrisis
	}
	if req.Allows(models.IntentInappropriate) && DetectAbuse(req.Input) {
		logging.FromContext(ctx, g.logger).Info("abusive language detected", "phase", req.Phase)
		return models.IntentInappropriate
	}
	return g.next.Classify(ctx, req)
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
