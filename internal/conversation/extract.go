package conversation

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxNameLength = 60

var (
	emailCandidate = regexp.MustCompile(`[^\s<>(),;:"]+@[^\s<>(),;:"]+`)

	namePrefixes = []string{
		"my name is", "my name's", "name is", "i'm", "im", "i am", "it's", "its",
		"this is", "call me", "they call me", "hi,", "hi", "hello,", "hello", "hey",
	}

	ownPrayerPrefixes = []string{
		"here is my prayer", "here's my prayer", "heres my prayer", "my prayer is",
		"use this", "use mine", "i wrote my own", "i wrote",
	}

	relationshipWords = map[string]string{
		"mother": "mother", "mom": "mother", "mum": "mother", "mama": "mother",
		"father": "father", "dad": "father", "papa": "father",
		"son": "son", "daughter": "daughter", "child": "child", "children": "children", "kids": "children",
		"brother": "brother", "sister": "sister",
		"husband": "husband", "wife": "wife", "partner": "partner", "fiance": "fiancé", "fiancé": "fiancé",
		"boyfriend": "boyfriend", "girlfriend": "girlfriend",
		"grandmother": "grandmother", "grandma": "grandmother", "grandfather": "grandfather", "grandpa": "grandfather",
		"aunt": "aunt", "uncle": "uncle", "cousin": "cousin", "niece": "niece", "nephew": "nephew",
		"friend": "friend", "neighbor": "neighbor", "neighbour": "neighbor", "coworker": "colleague", "colleague": "colleague",
		"family": "family",
		"myself": "self", "me": "self",
	}

	// stopNames are capitalized words that are not names.
	stopNames = map[string]bool{
		"I": true, "I'm": true, "My": true, "Our": true, "The": true, "She": true, "He": true, "They": true,
		"She's": true, "He's": true, "It": true, "It's": true, "His": true, "Her": true, "Their": true,
		"We": true, "There": true, "Please": true, "Pray": true, "Praying": true, "God": true, "Lord": true,
		"Jesus": true, "Yes": true, "No": true, "Dear": true, "This": true, "That": true, "For": true,
		"Can": true, "Could": true, "Would": true, "Just": true, "Hi": true, "Hello": true, "Thank": true,
		"Thanks": true, "Help": true, "Well": true, "So": true, "And": true, "But": true, "Hope": true,
	}
)

// ExtractName pulls the visitor's name out of a reply such as "I'm Anna".
// It returns "" when nothing usable remains.
func ExtractName(text string) string {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)
	for stripped := true; stripped; {
		stripped = false
		for _, p := range namePrefixes {
			if strings.HasPrefix(lower, p+" ") {
				s = strings.TrimSpace(s[len(p):])
				lower = strings.ToLower(s)
				stripped = true
				break
			}
		}
	}

	words := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-' && r != '\'')
	})
	if len(words) == 0 {
		return ""
	}
	if len(words) > 3 {
		words = words[:3]
	}
	for i, w := range words {
		for _, r := range w {
			if unicode.IsDigit(r) {
				return ""
			}
		}
		words[i] = titleWord(w)
	}

	name := strings.Join(words, " ")
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// ExtractEmail returns the first valid email address in text.
func ExtractEmail(text string) (string, bool) {
	for _, candidate := range emailCandidate.FindAllString(text, -1) {
		candidate = strings.ToLower(strings.TrimRight(candidate, ".!?'"))
		if err := validate.Var(candidate, "required,email"); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// ExtractPerson finds who the prayer is for. Either result may be nil.
func ExtractPerson(text, userName string) (name, relationship *string) {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-')
	})

	for _, w := range words {
		if rel, ok := relationshipWords[strings.ToLower(w)]; ok {
			relationship = models.StringPtr(rel)
			break
		}
	}
	if relationship != nil && *relationship == "self" && userName != "" {
		return models.StringPtr(userName), relationship
	}

	for _, w := range words {
		first := []rune(w)[0]
		if !unicode.IsUpper(first) || stopNames[w] {
			continue
		}
		if _, isRel := relationshipWords[strings.ToLower(w)]; isRel {
			continue
		}
		return models.StringPtr(w), relationship
	}

	if relationship == nil && len(words) > 0 && len(words) <= 2 {
		return models.StringPtr(ExtractName(text)), nil
	}
	return nil, relationship
}

// ExtractTier maps "the altar candle", "the second one" or "3" onto a tier
// name. Named tiers win over ordinals. It returns "" when no single tier is
// named.
func ExtractTier(ctx context.Context, text string) string {
	padded := " " + strings.ToLower(strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}), " ")) + " "

	tiers := constants.ListTiersWithS3(ctx)

	named := make([][]string, len(tiers))
	for i, t := range tiers {
		named[i] = []string{strings.ReplaceAll(t.Name, "_", " ")}
		for _, w := range strings.FieldsFunc(strings.ToLower(t.DisplayName), func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		}) {
			if w != "candle" && len(w) > 3 {
				named[i] = append(named[i], w)
			}
		}
	}
	if name := matchSingleTier(padded, tiers, named); name != "" {
		return name
	}

	ordinals := [][]string{
		{"first", "one", "1", "cheapest", "smallest"},
		{"second", "two", "2", "middle"},
		{"third", "three", "3", "last", "biggest", "largest"},
	}
	if len(ordinals) > len(tiers) {
		ordinals = ordinals[:len(tiers)]
	}
	return matchSingleTier(padded, tiers, ordinals)
}

func matchSingleTier(padded string, tiers []constants.Tier, keys [][]string) string {
	var found string
	for i, words := range keys {
		for _, k := range words {
			if strings.Contains(padded, " "+k+" ") {
				if found != "" && found != tiers[i].Name {
					return ""
				}
				found = tiers[i].Name
				break
			}
		}
	}
	return found
}

// ExtractOwnPrayer strips a leading "here is my prayer:" marker.
func ExtractOwnPrayer(text string) string {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)
	for _, p := range ownPrayerPrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			s = strings.TrimLeft(s, ":,.- ")
			break
		}
	}
	return strings.TrimSpace(s)
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	for i := range runes {
		if i == 0 || runes[i-1] == '-' {
			runes[i] = unicode.ToUpper(runes[i])
		}
	}
	return string(runes)
}
