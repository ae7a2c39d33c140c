package classifier

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

const (
	llmMaxTokens      = 16
	llmHistoryEntries = 8
)

// intentDescriptions tell the model what each label means.
var intentDescriptions = map[models.Intent]string{
	models.IntentContinue:         "the message does not fit any other label, or is unclear",
	models.IntentCrisis:           "the visitor expresses thoughts of self-harm or suicide",
	models.IntentInappropriate:    "abusive, sexual, hateful, or clearly off-topic content",
	models.IntentProvideName:      "the visitor gives their name",
	models.IntentSelectBucket:     "the visitor names the kind of prayer they need (healing, family, protection, grief, guidance)",
	models.IntentProvideEmail:     "the visitor gives an email address",
	models.IntentDeclineEmail:     "the visitor does not want to share an email address",
	models.IntentShareDetail:      "the visitor shares details about the person or situation",
	models.IntentAffirm:           "the visitor approves or agrees",
	models.IntentRevise:           "the visitor wants the prayer changed or rewritten",
	models.IntentProvideOwnPrayer: "the visitor supplies the full text of their own prayer",
	models.IntentSelectTier:       "the visitor picks one of the offered options",
	models.IntentDecline:          "the visitor declines the offer",
	models.IntentAccept:           "the visitor accepts the offer",
	models.IntentMoreInfo:         "the visitor asks a question or wants to know more",
}

// LLM classifies with a single bounded chat completion at temperature 0.
type LLM struct {
	client  llm.Completer
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLM creates an LLM-backed classifier.
func NewLLM(client llm.Completer, model string, timeout time.Duration, logger *slog.Logger) *LLM {
	return &LLM{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With("component", "classifier_llm"),
	}
}

// Classify implements Classifier.
func (c *LLM) Classify(ctx context.Context, req Request) models.Intent {
	log := logging.FromContext(ctx, c.logger)

	result, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      systemPrompt(req),
		User:        userPrompt(req),
		Temperature: 0,
		MaxTokens:   llmMaxTokens,
		Timeout:     c.timeout,
	})
	if err != nil {
		log.Warn("classification failed, using fallback",
			"phase", req.Phase,
			"fallback", req.Fallback,
			"error", err,
		)
		return req.Fallback
	}

	intent, ok := Decode(result.Content, req)
	if !ok {
		log.Warn("classifier returned out-of-set label, using fallback",
			"phase", req.Phase,
			"raw", truncate(result.Content, 64),
			"fallback", req.Fallback,
		)
		return req.Fallback
	}

	log.Debug("classified input", "phase", req.Phase, "intent", intent)
	return intent
}

func systemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You label the latest visitor message in a prayer request conversation.\n")
	fmt.Fprintf(&b, "The conversation is in the %q step.\n", req.Phase)
	if req.Bucket != "" && req.Bucket != models.BucketUnset {
		fmt.Fprintf(&b, "The visitor asked for a %s prayer.\n", req.Bucket)
	}
	b.WriteString("Reply with exactly one label from this list and nothing else:\n")
	for _, intent := range req.Legal {
		fmt.Fprintf(&b, "- %s: %s\n", intent, intentDescriptions[intent])
	}
	fmt.Fprintf(&b, "If unsure, reply %s.", req.Fallback)
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript(req.History, llmHistoryEntries))
		b.WriteString("\n")
	}
	b.WriteString("Latest visitor message:\n")
	b.WriteString(req.Input)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
