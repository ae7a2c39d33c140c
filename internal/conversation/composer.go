package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/prayerline/internal/llm"
	"github.com/jmylchreest/prayerline/internal/logging"
	"github.com/jmylchreest/prayerline/internal/models"
)

// PrayerRequest is what a composer knows about the intention.
type PrayerRequest struct {
	UserName     string
	Bucket       models.Bucket
	PersonName   string
	Relationship string
	Situation    string
	Hope         string
	// Revision counts earlier drafts; composers should vary the text.
	Revision int
}

// PrayerRequestFor builds a PrayerRequest from a session.
func PrayerRequestFor(s *models.Session, revision int) PrayerRequest {
	return PrayerRequest{
		UserName:     s.UserName,
		Bucket:       s.Bucket,
		PersonName:   deref(s.PersonName),
		Relationship: deref(s.Relationship),
		Situation:    deref(s.Situation),
		Hope:         deref(s.Hope),
		Revision:     revision,
	}
}

// Composer writes prayer text.
type Composer interface {
	Compose(ctx context.Context, req PrayerRequest) (string, error)
}

const composerMaxTokens = 400

// LLMComposer writes prayers with a chat completion.
type LLMComposer struct {
	client  llm.Completer
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMComposer creates an LLM-backed composer.
func NewLLMComposer(client llm.Completer, model string, timeout time.Duration, logger *slog.Logger) *LLMComposer {
	return &LLMComposer{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "composer_llm"),
	}
}

// Compose implements Composer.
func (c *LLMComposer) Compose(ctx context.Context, req PrayerRequest) (string, error) {
	result, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      composerSystemPrompt,
		User:        composerUserPrompt(req),
		Temperature: 0.7,
		MaxTokens:   composerMaxTokens,
		Timeout:     c.timeout,
	})
	if err != nil {
		return "", err
	}
	if result.IsTruncated() {
		logging.FromContext(ctx, c.logger).Warn("prayer truncated", "model", c.model, "output_tokens", result.OutputTokens)
		return "", fmt.Errorf("prayer truncated at %d tokens", result.OutputTokens)
	}
	return strings.TrimSpace(result.Content), nil
}

const composerSystemPrompt = `You write short, warm Christian intercessory prayers for a visitor.
Write one prayer of 60 to 120 words in plain text, without a title or markdown.
Address God directly, name the person prayed for when known, and end with "Amen."
Never mention money, prices, offerings or payment.`

func composerUserPrompt(req PrayerRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prayer type: %s\n", req.Bucket)
	if req.UserName != "" {
		fmt.Fprintf(&b, "Requested by: %s\n", req.UserName)
	}
	if req.PersonName != "" {
		fmt.Fprintf(&b, "Praying for: %s\n", req.PersonName)
	}
	if req.Relationship != "" {
		fmt.Fprintf(&b, "Relationship to requester: %s\n", req.Relationship)
	}
	if req.Situation != "" {
		fmt.Fprintf(&b, "Situation: %s\n", req.Situation)
	}
	if req.Hope != "" {
		fmt.Fprintf(&b, "Hoped-for outcome: %s\n", req.Hope)
	}
	if req.Revision > 0 {
		fmt.Fprintf(&b, "This is draft %d; the visitor asked for a different version.\n", req.Revision+1)
	}
	return b.String()
}

// TemplateComposer writes prayers from fixed text. It never fails.
type TemplateComposer struct{}

// Compose implements Composer.
func (TemplateComposer) Compose(_ context.Context, req PrayerRequest) (string, error) {
	return templatePrayer(req), nil
}

var bucketPetitions = map[models.Bucket][]string{
	models.BucketHealing: {
		"Lay your healing hand upon %s. Restore strength to body and spirit, and give peace in every hour of waiting.",
		"Be the great physician for %s. Guide every doctor and nurse, ease all pain, and bring wholeness again.",
	},
	models.BucketFamily: {
		"Hold %s and all our family in your love. Mend what is broken, soften what is hard, and bind us together in peace.",
		"Bless %s and every member of this family. Let patience, forgiveness and kindness fill our home.",
	},
	models.BucketProtection: {
		"Stand guard over %s. Shelter them from every danger, seen and unseen, and surround them with your angels.",
		"Be a shield around %s by day and by night. Keep them safe wherever they go.",
	},
	models.BucketGrief: {
		"Comfort %s in this season of loss. Be near to the brokenhearted and hold every tear in your hands.",
		"Wrap %s in your peace. Turn mourning into hope, and let the memory of love be a light in the dark.",
	},
	models.BucketGuidance: {
		"Give %s wisdom for the road ahead. Make the right path clear and grant courage to walk it.",
		"Light the way for %s. Quiet every anxious thought and lead them gently by your Spirit.",
	},
}

func templatePrayer(req PrayerRequest) string {
	who := req.PersonName
	if who == "" {
		who = "the one I carry in my heart"
	}

	petitions, ok := bucketPetitions[req.Bucket]
	if !ok {
		petitions = []string{"Be close to %s and meet every need with your grace."}
	}
	petition := fmt.Sprintf(petitions[req.Revision%len(petitions)], who)

	var b strings.Builder
	b.WriteString("Loving God, ")
	if req.UserName != "" {
		fmt.Fprintf(&b, "%s comes to you in trust. ", req.UserName)
	} else {
		b.WriteString("I come to you in trust. ")
	}
	b.WriteString(petition)
	if req.Situation != "" {
		fmt.Fprintf(&b, " You know all that is happening: %s.", strings.TrimRight(req.Situation, ". "))
	}
	if req.Hope != "" {
		fmt.Fprintf(&b, " We ask, if it is your will, %s.", strings.TrimRight(req.Hope, ". "))
	}
	b.WriteString(" Into your hands we place this intention. Amen.")
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
