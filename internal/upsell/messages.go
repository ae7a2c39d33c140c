package upsell

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/prayerline/internal/constants"
	"github.com/jmylchreest/prayerline/internal/models"
)

const (
	msgComplete    = "Thank you again. Your prayer is in good hands."
	msgChooseItem  = "Would you prefer the %s or the %s?"
	msgDeclined    = "No problem at all."
	msgNotReceived = "I'm sorry, I didn't catch that. You can add it, say no thanks, or ask for more details."
	msgRedirect    = "Let's keep things kind. You can add the offer, say no thanks, or ask for more details."
)

func priced(o constants.Offer, currency string) string {
	return fmt.Sprintf("%s (%s)", o.DisplayName, constants.FormatAmount(o.AmountCents, currency))
}

// offerBatch introduces the offers of a step.
func offerBatch(chain models.UpsellChain, offers []constants.Offer, v Visitor, prior *models.UpsellOutcome, currency string) []string {
	var out []string
	if chain == models.UpsellChainTwo {
		out = append(out, personalize(prior, v))
	}

	switch len(offers) {
	case 0:
		return out
	case 1:
		o := offers[0]
		out = append(out,
			fmt.Sprintf("Would you like to add a %s? %s.", priced(o, currency), o.Description),
			"It's charged to the card you just used, with no need to enter it again.",
		)
	default:
		names := make([]string, len(offers))
		for i, o := range offers {
			names[i] = "a " + priced(o, currency)
		}
		out = append(out,
			"We also have a keepsake to carry your prayer with you: "+strings.Join(names, " or ")+".",
			"Would you like one?",
		)
	}
	return out
}

// personalize opens chain two using the chain one snapshot.
func personalize(prior *models.UpsellOutcome, v Visitor) string {
	name := ""
	if v.Name != "" {
		name = ", " + v.Name
	}
	if prior == nil || len(prior.PurchaseTypes) == 0 {
		return fmt.Sprintf("One last thing%s.", name)
	}
	items := make([]string, len(prior.PurchaseTypes))
	for i, p := range prior.PurchaseTypes {
		items[i] = string(p)
	}
	return fmt.Sprintf("Thank you for choosing the %s%s. There is one more blessing we can offer.", strings.Join(items, " and "), name)
}

func moreInfoBatch(offers []constants.Offer, currency string) []string {
	out := make([]string, 0, len(offers)+1)
	for _, o := range offers {
		out = append(out, fmt.Sprintf("The %s: %s.", priced(o, currency), o.Description))
	}
	return append(out, "Would you like to add it?")
}

func acceptedMessage(o constants.Offer) string {
	return fmt.Sprintf("Thank you. Your %s has been added.", strings.ToLower(o.DisplayName))
}

func chargeFailedBatch(o constants.Offer, reason string) []string {
	first := fmt.Sprintf("We couldn't complete the charge for the %s.", strings.ToLower(o.DisplayName))
	if reason != "" {
		first = fmt.Sprintf("We couldn't complete the charge for the %s (%s).", strings.ToLower(o.DisplayName), reason)
	}
	return []string{first, "You can try again, or say no thanks to continue."}
}

func chooseItem(offers []constants.Offer) string {
	if len(offers) < 2 {
		return msgNotReceived
	}
	return fmt.Sprintf(msgChooseItem, strings.ToLower(offers[0].DisplayName), strings.ToLower(offers[1].DisplayName))
}
