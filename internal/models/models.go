// Package models defines the domain models for the application.
package models

import (
	"time"
)

// Phase is a named state in the primary intake conversation.
type Phase string

const (
	PhaseGreeting                Phase = "greeting"
	PhaseAwaitName               Phase = "await_name"
	PhaseAwaitBucket             Phase = "await_bucket"
	PhaseAwaitEmail              Phase = "await_email"
	PhaseDeepening               Phase = "deepening"
	PhaseComposingPrayer         Phase = "composing_prayer"
	PhaseConfirmingPrayer        Phase = "confirming_prayer"
	PhasePaymentOffer            Phase = "payment_offer"
	PhasePaid                    Phase = "paid"
	PhaseInappropriateEscalation Phase = "inappropriate_escalation"
)

// Intent is a closed-enum label produced by the classifier for the current phase.
type Intent string

const (
	IntentContinue         Intent = "continue"
	IntentCrisis           Intent = "crisis"
	IntentInappropriate    Intent = "inappropriate"
	IntentProvideName      Intent = "provide_name"
	IntentSelectBucket     Intent = "select_bucket"
	IntentProvideEmail     Intent = "provide_email"
	IntentDeclineEmail     Intent = "decline_email"
	IntentShareDetail      Intent = "share_detail"
	IntentAffirm           Intent = "affirm"
	IntentRevise           Intent = "revise"
	IntentProvideOwnPrayer Intent = "provide_own_prayer"
	IntentSelectTier       Intent = "select_tier"
	IntentDecline          Intent = "decline"

	// Upsell actions share the intent namespace so free text can be classified
	// with the same adapter.
	IntentAccept   Intent = "accept"
	IntentMoreInfo Intent = "more_info"
)

// Bucket is the user-selected prayer category.
type Bucket string

const (
	BucketUnset      Bucket = "unset"
	BucketHealing    Bucket = "healing"
	BucketFamily     Bucket = "family"
	BucketProtection Bucket = "protection"
	BucketGrief      Bucket = "grief"
	BucketGuidance   Bucket = "guidance"
)

// Buckets lists the selectable buckets in display order.
var Buckets = []Bucket{BucketHealing, BucketFamily, BucketProtection, BucketGrief, BucketGuidance}

// Valid reports whether b is a selectable bucket.
func (b Bucket) Valid() bool {
	for _, v := range Buckets {
		if b == v {
			return true
		}
	}
	return false
}

// PrayerSource records who authored the prayer text.
type PrayerSource string

const (
	PrayerSourceModel PrayerSource = "model-authored"
	PrayerSourceUser  PrayerSource = "user-authored"
)

// PaymentStatus is the lifecycle state of a payment (and the session's summary of it).
type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = "none"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Role identifies the author of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation's append-only history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Phase     string    `json:"phase"` // phase at the time the entry was appended
	CreatedAt time.Time `json:"created_at"`
}

// Session is one visitor conversation.
type Session struct {
	ID                 string        `json:"id"`
	UserName           string        `json:"user_name,omitempty"`
	UserEmail          *string       `json:"user_email,omitempty"`
	Bucket             Bucket        `json:"bucket"`
	Phase              Phase         `json:"phase"`
	PersonName         *string       `json:"person_name,omitempty"`
	Relationship       *string       `json:"relationship,omitempty"`
	Situation          *string       `json:"situation,omitempty"`
	Hope               *string       `json:"hope,omitempty"`
	PrayerText         *string       `json:"prayer_text,omitempty"`
	PrayerSource       PrayerSource  `json:"prayer_source,omitempty"`
	ReadyForPayment    bool          `json:"ready_for_payment"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	InappropriateCount int           `json:"inappropriate_count"`
	CrisisFlag         bool          `json:"crisis_flag"`
	DeepeningTurns     int           `json:"deepening_turns"`
	History            []Message     `json:"history"`

	// Captured from the first paid checkout for one-click charges.
	GatewayCustomerID string `json:"-"`
	PaymentMethodID   string `json:"-"`

	// Ad attribution captured at session start.
	UTMSource   string `json:"utm_source,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	ClickID     string `json:"click_id,omitempty"`

	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Closed reports whether the session accepts no further turns.
func (s *Session) Closed() bool {
	return s.Phase == PhaseInappropriateEscalation
}

// Email returns the captured email or "".
func (s *Session) Email() string {
	if s.UserEmail == nil {
		return ""
	}
	return *s.UserEmail
}

// Clone returns a deep copy so a mutation can be discarded on failure.
func (s *Session) Clone() *Session {
	c := *s
	c.UserEmail = cloneString(s.UserEmail)
	c.PersonName = cloneString(s.PersonName)
	c.Relationship = cloneString(s.Relationship)
	c.Situation = cloneString(s.Situation)
	c.Hope = cloneString(s.Hope)
	c.PrayerText = cloneString(s.PrayerText)
	c.History = append([]Message(nil), s.History...)
	return &c
}

// IntentionStatus is the delivery state of a prayer intention.
type IntentionStatus string

const (
	IntentionStatusPending   IntentionStatus = "pending"
	IntentionStatusDelivered IntentionStatus = "delivered"
)

// PrayerIntention is the confirmed prayer request, created once per session.
type PrayerIntention struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Bucket       Bucket          `json:"bucket"`
	UserName     string          `json:"user_name"`
	PersonName   *string         `json:"person_name,omitempty"`
	Relationship *string         `json:"relationship,omitempty"`
	Situation    *string         `json:"situation,omitempty"`
	Hope         *string         `json:"hope,omitempty"`
	PrayerText   string          `json:"prayer_text"`
	PrayerSource PrayerSource    `json:"prayer_source"`
	Status       IntentionStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	DeliveredAt  *time.Time      `json:"delivered_at,omitempty"`
}

// PaymentKind distinguishes the initial tier purchase from upsell charges.
type PaymentKind string

const (
	PaymentKindTier   PaymentKind = "tier"
	PaymentKindUpsell PaymentKind = "upsell"
)

// OfferType identifies an upsell offer. It is the idempotency dimension for
// one-click charges.
type OfferType string

const (
	OfferCandle            OfferType = "candle"
	OfferMedal             OfferType = "medal"
	OfferPendant           OfferType = "pendant"
	OfferProtectionPendant OfferType = "protection_pendant"
)

// PurchaseType is what the visitor ends up owning.
type PurchaseType string

const (
	PurchaseNone    PurchaseType = "none"
	PurchaseCandle  PurchaseType = "candle"
	PurchaseMedal   PurchaseType = "medal"
	PurchasePendant PurchaseType = "pendant"
)

// PurchaseType maps an offer to the item it grants.
func (o OfferType) PurchaseType() PurchaseType {
	switch o {
	case OfferCandle:
		return PurchaseCandle
	case OfferMedal:
		return PurchaseMedal
	case OfferPendant, OfferProtectionPendant:
		return PurchasePendant
	default:
		return PurchaseNone
	}
}

// Payment is one payment attempt. GatewayRef is the gateway-assigned
// transaction identifier (checkout session id or payment intent id).
type Payment struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	PrayerID       *string       `json:"prayer_id,omitempty"`
	Kind           PaymentKind   `json:"kind"`
	Tier           string        `json:"tier,omitempty"`
	OfferType      OfferType     `json:"offer_type,omitempty"`
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	GatewayRef     string        `json:"gateway_ref"`
	IdempotencyKey string        `json:"-"`
	Attempt        int           `json:"attempt"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
}

// UpsellChain numbers the post-payment offer chains.
type UpsellChain int

const (
	UpsellChainOne UpsellChain = 1
	UpsellChainTwo UpsellChain = 2
)

// UpsellPhase is a state in an upsell chain.
type UpsellPhase string

const (
	UpsellPhaseOfferCandle            UpsellPhase = "offer_candle"
	UpsellPhaseOfferMedalOrPendant    UpsellPhase = "offer_medal_or_pendant"
	UpsellPhaseOfferProtectionPendant UpsellPhase = "offer_protection_pendant"
	UpsellPhaseComplete               UpsellPhase = "complete"
)

// UpsellOutcome is a value snapshot of a finished chain.
type UpsellOutcome struct {
	Phase         UpsellPhase    `json:"phase"`
	PurchaseTypes []PurchaseType `json:"purchase_types"`
	Declined      []OfferType    `json:"declined,omitempty"`
}

// UpsellSession is one upsell chain instance for an original session.
type UpsellSession struct {
	ID                string         `json:"id"`
	OriginalSessionID string         `json:"original_session_id"`
	Chain             UpsellChain    `json:"chain"`
	Phase             UpsellPhase    `json:"phase"`
	PurchaseTypes     []PurchaseType `json:"purchase_types"`
	Declined          []OfferType    `json:"declined,omitempty"`
	Upsell1Outcome    *UpsellOutcome `json:"upsell1_outcome,omitempty"`
	History           []Message      `json:"history"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// HasPurchase reports whether p was accepted in this chain.
func (u *UpsellSession) HasPurchase(p PurchaseType) bool {
	for _, v := range u.PurchaseTypes {
		if v == p {
			return true
		}
	}
	return false
}

// Outcome returns a value snapshot of the chain.
func (u *UpsellSession) Outcome() UpsellOutcome {
	return UpsellOutcome{
		Phase:         u.Phase,
		PurchaseTypes: append([]PurchaseType(nil), u.PurchaseTypes...),
		Declined:      append([]OfferType(nil), u.Declined...),
	}
}

// Clone returns a deep copy.
func (u *UpsellSession) Clone() *UpsellSession {
	c := *u
	c.PurchaseTypes = append([]PurchaseType(nil), u.PurchaseTypes...)
	c.Declined = append([]OfferType(nil), u.Declined...)
	c.History = append([]Message(nil), u.History...)
	if u.Upsell1Outcome != nil {
		o := *u.Upsell1Outcome
		o.PurchaseTypes = append([]PurchaseType(nil), o.PurchaseTypes...)
		o.Declined = append([]OfferType(nil), o.Declined...)
		c.Upsell1Outcome = &o
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
