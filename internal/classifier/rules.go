package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

var emailPattern = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]+`)

// BucketKeywords maps each bucket to words that select it.
var BucketKeywords = map[models.Bucket][]string{
	models.BucketHealing:    {"healing", "heal", "health", "sick", "illness", "ill", "cancer", "surgery", "hospital", "recovery", "pain", "disease"},
	models.BucketFamily:     {"family", "marriage", "husband", "wife", "children", "child", "son", "daughter", "mother", "father", "mom", "dad", "parents", "relationship"},
	models.BucketProtection: {"protection", "protect", "safety", "safe", "danger", "travel", "harm"},
	models.BucketGrief:      {"grief", "grieving", "loss", "lost", "died", "passed", "death", "mourning", "funeral"},
	models.BucketGuidance:   {"guidance", "guide", "direction", "decision", "job", "career", "work", "future", "discernment", "path"},
}

// keyword sets per intent, matched as whole words or phrases.
var (
	affirmWords  = []string{"yes", "yeah", "yep", "yup", "perfect", "amen", "beautiful", "lovely", "good", "great", "ok", "okay", "sure", "sounds good", "love it", "that's it", "thats it", "correct", "right", "please do", "go ahead"}
	acceptWords  = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "add", "add it", "i'll take", "ill take", "buy", "want it", "take it", "please", "do it", "go ahead"}
	declineWords = []string{"no", "nope", "no thanks", "no thank you", "not now", "not today", "skip", "pass", "maybe later", "not interested", "i'm good", "im good", "don't", "dont"}
	reviseWords  = []string{"not good", "change", "different", "rewrite", "again", "not quite", "redo", "another", "shorter", "longer", "edit", "instead", "not right"}
	moreWords    = []string{"more", "info", "information", "tell me", "what is", "what's", "whats", "how", "why", "details", "explain"}
	ownPrayer    = []string{"my own", "i wrote", "i have a prayer", "here is my prayer", "here's my prayer", "use this", "use mine"}
	tierWords    = []string{"votive", "altar", "novena", "small", "large", "nine", "first", "second", "third", "one", "two", "three", "1", "2", "3"}
)

// prayerWords mark text addressed as a prayer. requestWords mark text asking
// for a change to the composed prayer.
var (
	prayerWords  = []string{"lord", "god", "father", "jesus", "christ", "mary", "amen", "heavenly", "holy", "saint", "st"}
	requestWords = []string{"can you", "could you", "would you", "make it", "rewrite", "redo"}
)

// looksLikeOwnPrayer reports whether text reads as a prayer the visitor wrote
// rather than a reply about the composed one.
func looksLikeOwnPrayer(s string) bool {
	if len(strings.Fields(s)) < constants.OwnPrayerMinWords {
		return false
	}
	return containsAny(s, prayerWords) && !containsAny(s, requestWords)
}

// Rules is the keyword classifier used when no LLM is configured.
type Rules struct{}

// NewRules creates a keyword classifier.
func NewRules() *Rules {
	return &Rules{}
}

// Classify implements Classifier. Checks run in a fixed priority order and
// only labels in req.Legal are considered.
func (Rules) Classify(_ context.Context, req Request) models.Intent {
	text := normalizeText(req.Input)
	if text == "" {
		return req.Fallback
	}

	checks := []struct {
		intent models.Intent
		match  func(string) bool
	}{
		{models.IntentProvideEmail, func(s string) bool { return emailPattern.MatchString(s) }},
		{models.IntentProvideOwnPrayer, func(s string) bool { return containsAny(s, ownPrayer) || looksLikeOwnPrayer(s) }},
		{models.IntentDeclineEmail, func(s string) bool { return containsAny(s, declineWords) }},
		{models.IntentSelectBucket, func(s string) bool { return MatchBucket(s) != "" }},
		{models.IntentRevise, func(s string) bool { return containsAny(s, reviseWords) || isBareNo(s) }},
		{models.IntentDecline, func(s string) bool { return containsAny(s, declineWords) }},
		{models.IntentSelectTier, func(s string) bool { return containsAny(s, tierWords) }},
		{models.IntentMoreInfo, func(s string) bool { return strings.HasSuffix(s, "?") || containsAny(s, moreWords) }},
		{models.IntentAffirm, func(s string) bool { return containsAny(s, affirmWords) }},
		{models.IntentAccept, func(s string) bool { return containsAny(s, acceptWords) }},
		{models.IntentProvideName, looksLikeName},
		{models.IntentShareDetail, func(s string) bool { return len(strings.Fields(s)) >= 2 || len(s) >= 4 }},
	}

	for _, c := range checks {
		if req.Allows(c.intent) && c.match(text) {
			return c.intent
		}
	}
	return req.Fallback
}

// MatchBucket returns the bucket named by text, or "" if none or several match.
func MatchBucket(text string) models.Bucket {
	text = normalizeText(text)
	var found models.Bucket
	for _, b := range models.Buckets {
		if containsAny(text, BucketKeywords[b]) {
			if found != "" {
				return ""
			}
			found = b
		}
	}
	return found
}

func isBareNo(s string) bool {
	switch stripPunct(s) {
	case "no", "nope", "not really", "no thanks":
		return true
	}
	return false
}

func looksLikeName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 6 {
		return false
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

// containsAny matches whole words and phrases only.
func containsAny(text string, phrases []string) bool {
	padded := " " + stripPunct(text) + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

var punct = strings.NewReplacer(",", " ", ".", " ", "!", " ", "?", " ", ";", " ", ":", " ", "\"", " ", "(", " ", ")", " ")

func stripPunct(s string) string {
	return strings.Join(strings.Fields(punct.Replace(s)), " ")
}
