package conversation

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

// Fixed copy. Messages are emitted in short batches, one chunk per bubble.

const (
	msgClosed       = "This conversation has been closed. If you need support, please reach out to someone you trust."
	msgPaidThanks   = "Thank you. Your intention is in our prayers, and we will let you know once it has been offered."
	msgAskTierAgain = "Which option would you like? You can say the name or its number."
)

var crisisBatch = []string{
	"I'm so sorry you're carrying this much pain right now. You matter, and you don't have to face this alone.",
	"If you are in the United States, you can call or text 988 to reach the Suicide & Crisis Lifeline at any hour. If you are elsewhere, please contact your local emergency number or a crisis line near you.",
	"If you are in immediate danger, please call emergency services now.",
	"I'm still here with you, and we can keep going with your prayer whenever you're ready.",
}

// CrisisBatch returns a copy of the supportive messages sent when self-harm
// language is detected.
func CrisisBatch() []string {
	return append([]string(nil), crisisBatch...)
}

var escalationBatch = []string{
	"I'm not able to continue this conversation.",
	msgClosed,
}

var bucketLabels = map[models.Bucket]string{
	models.BucketHealing:    "Healing",
	models.BucketFamily:     "Family",
	models.BucketProtection: "Protection",
	models.BucketGrief:      "Grief",
	models.BucketGuidance:   "Guidance",
}

func greetingBatch() []string {
	return []string{
		"Welcome. I'm here to help you put your prayer into words.",
		"Everything you share stays between us and the people who will pray for you.",
		askName(),
	}
}

func askName() string {
	return "To begin, what is your first name?"
}

func askBucket(name string) []string {
	labels := make([]string, 0, len(models.Buckets))
	for _, b := range models.Buckets {
		labels = append(labels, bucketLabels[b])
	}
	return []string{
		fmt.Sprintf("Thank you, %s.", name),
		"What kind of prayer is on your heart today? " + strings.Join(labels, ", ") + ".",
	}
}

func askEmail(b models.Bucket) []string {
	return []string{
		fmt.Sprintf("%s. We will hold that close.", bucketAck(b)),
		"If you'd like, share your email so we can let you know when your prayer has been offered. You can also skip this.",
	}
}

func bucketAck(b models.Bucket) string {
	switch b {
	case models.BucketHealing:
		return "A prayer for healing"
	case models.BucketFamily:
		return "A prayer for your family"
	case models.BucketProtection:
		return "A prayer for protection"
	case models.BucketGrief:
		return "A prayer for comfort in grief"
	case models.BucketGuidance:
		return "A prayer for guidance"
	default:
		return "A prayer"
	}
}

// deepeningQuestion returns the question for answer index i.
func deepeningQuestion(i int) string {
	switch i {
	case 0:
		return "Who is this prayer for? Tell me their name and how you know them, or say it's for you."
	case 1:
		return "What is happening in their life right now?"
	case 2:
		return "What are you hoping God will do?"
	default:
		return "Is there anything else you'd like included?"
	}
}

func emailAccepted() string {
	return "Thank you, we'll keep you updated."
}

func emailSkipped() string {
	return "That's perfectly fine."
}

func askEmailAgain() string {
	return "That doesn't look like an email address I can use. Could you check it, or say \"skip\"?"
}

func askNameAgain() string {
	return "I didn't quite catch your name. What should I call you?"
}

func askBucketAgain() string {
	labels := make([]string, 0, len(models.Buckets))
	for _, b := range models.Buckets {
		labels = append(labels, bucketLabels[b])
	}
	return "Which of these fits best? " + strings.Join(labels, ", ") + "."
}

func composingIntro() string {
	return "Thank you for trusting me with this. Here is a prayer for your intention:"
}

func confirmPrompt() string {
	return "Does this prayer feel right? Say yes to keep it, or tell me what to change. You can also send your own words."
}

func confirmFinal() string {
	return "Wonderful. Shall I place this prayer with your intention so it can be offered?"
}

func confirmOwnPrompt() string {
	return "Thank you for sharing your own words. Shall we offer this prayer as written?"
}

func askOwnPrayerText() string {
	return "Please send the full text of your prayer and I'll use it as written."
}

func confirmAgain() string {
	return "Shall we keep this prayer as it is? Just say yes, or tell me what you'd like changed."
}

func revisionIntro() string {
	return "Of course. Here is another version:"
}

// paymentOfferBatch lists the tiers with prices. It is the first message
// allowed to carry an amount.
func paymentOfferBatch(name string, tiers []constants.Tier, currency string) []string {
	lines := make([]string, 0, len(tiers))
	for i, t := range tiers {
		lines = append(lines, fmt.Sprintf("%d. %s (%s): %s", i+1, t.DisplayName, constants.FormatAmount(t.AmountCents, currency), t.Description))
	}
	greeting := "Your prayer is ready."
	if name != "" {
		greeting = fmt.Sprintf("Your prayer is ready, %s.", name)
	}
	return []string{
		greeting,
		"You can accompany it with an offering. Choose one of these:",
		strings.Join(lines, "\n"),
	}
}

func checkoutUnavailable() string {
	return "I couldn't open the secure payment page just now. Please try again in a moment."
}

func checkoutMessage(t constants.Tier) string {
	return fmt.Sprintf("Wonderful. Use the secure link to complete your %s offering.", t.DisplayName)
}

func alreadyPaidMessage() string {
	return "Your offering has already been received. Thank you."
}

func offerDeclined() string {
	return "I understand. Your prayer is saved, and you can choose an offering any time."
}

func paymentFailedBatch(reason string) []string {
	out := []string{"Your payment didn't go through."}
	if reason != "" {
		out[0] = fmt.Sprintf("Your payment didn't go through (%s).", reason)
	}
	return append(out, "You can try again by choosing an option below, or use a different card.")
}

func paidBatch(name string) []string {
	first := "Thank you for your offering."
	if name != "" {
		first = fmt.Sprintf("Thank you for your offering, %s.", name)
	}
	return []string{first, msgPaidThanks}
}

// redirect is sent for inappropriate input below the escalation threshold.
func redirect(p models.Phase) []string {
	return []string{
		"Let's keep this space respectful so I can help with your prayer.",
		reprompt(p),
	}
}

// clarify is sent when the classifier could not place the input.
func clarify(p models.Phase) []string {
	return []string{"I'm sorry, I didn't quite follow.", reprompt(p)}
}

// reprompt repeats the question for the current phase.
func reprompt(p models.Phase) string {
	switch p {
	case models.PhaseGreeting, models.PhaseAwaitName:
		return askName()
	case models.PhaseAwaitBucket:
		return askBucketAgain()
	case models.PhaseAwaitEmail:
		return "Would you like to share your email, or skip this step?"
	case models.PhaseDeepening:
		return "Could you tell me a little more about this intention?"
	case models.PhaseComposingPrayer, models.PhaseConfirmingPrayer:
		return confirmAgain()
	case models.PhasePaymentOffer:
		return msgAskTierAgain
	case models.PhasePaid:
		return msgPaidThanks
	default:
		return msgClosed
	}
}
