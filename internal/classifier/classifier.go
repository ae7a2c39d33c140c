// Package classifier maps a visitor's free text onto the closed intent set of
// the current conversation phase. Every implementation returns a legal label;
// failures resolve to the caller's fallback and are never returned.
package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmylchreest/prayerline/internal/models"
)

// Request is one classification call.
type Request struct {
	// Phase is the conversation or upsell phase the input answers.
	Phase string
	// Bucket gives the model tone context. Optional.
	Bucket models.Bucket
	// Legal is the closed set the result must come from.
	Legal []models.Intent
	// Fallback is returned for failures and out-of-set labels.
	Fallback models.Intent
	History  []models.Message
	Input    string
}

// Allows reports whether intent is in the legal set.
func (r Request) Allows(intent models.Intent) bool {
	for _, l := range r.Legal {
		if l == intent {
			return true
		}
	}
	return false
}

// Classifier returns one label from req.Legal, or req.Fallback.
type Classifier interface {
	Classify(ctx context.Context, req Request) models.Intent
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, req Request) models.Intent

// Classify calls f.
func (f Func) Classify(ctx context.Context, req Request) models.Intent {
	return f(ctx, req)
}

// Decode normalizes a raw model label and restricts it to req.Legal.
// It accepts bare labels in any case, quoted or punctuated labels, and
// {"intent": "..."} objects. ok is false when the fallback was used.
func Decode(raw string, req Request) (intent models.Intent, ok bool) {
	label := normalizeLabel(raw)
	if label == "" {
		return req.Fallback, false
	}
	candidate := models.Intent(label)
	if !req.Allows(candidate) {
		return req.Fallback, false
	}
	return candidate, true
}

func normalizeLabel(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") {
		var obj struct {
			Intent string `json:"intent"`
			Label  string `json:"label"`
		}
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return ""
		}
		s = obj.Intent
		if s == "" {
			s = obj.Label
		}
	}

	// Models sometimes explain themselves on later lines.
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}

	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "intent:")
	s = strings.Trim(s, " \t\"'`.,;:!?*()[]")
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// transcript renders the most recent history entries for a prompt.
func transcript(history []models.Message, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
