// Package notify delivers fire-and-forget notifications: email list leads,
// the intake audit log and ad-attribution events. Callers hand events to the
// Dispatcher and never wait for delivery.
package notify

import (
	"context"
	"time"

	"github.com/jmylchreest/prayerline/internal/models"
)

// Event types sent to the backends.
const (
	EventLeadCaptured = "lead.captured"
	EventIntakeLogged = "intake.logged"
	EventPaymentPaid  = "payment.paid"
	EventPurchase     = "purchase"
)

// Lead is a captured email address.
type Lead struct {
	SessionID   string        `json:"session_id"`
	Email       string        `json:"email"`
	Name        string        `json:"name,omitempty"`
	Bucket      models.Bucket `json:"bucket"`
	UTMSource   string        `json:"utm_source,omitempty"`
	UTMCampaign string        `json:"utm_campaign,omitempty"`
	ClickID     string        `json:"click_id,omitempty"`
	At          time.Time     `json:"at"`
}

// IntakeRecord is one confirmed intention, written to the audit log.
type IntakeRecord struct {
	SessionID    string              `json:"session_id"`
	IntentionID  string              `json:"intention_id"`
	Bucket       models.Bucket       `json:"bucket"`
	UserName     string              `json:"user_name"`
	PersonName   string              `json:"person_name,omitempty"`
	Relationship string              `json:"relationship,omitempty"`
	PrayerText   string              `json:"prayer_text"`
	PrayerSource models.PrayerSource `json:"prayer_source"`
	CrisisFlag   bool                `json:"crisis_flag"`
	At           time.Time           `json:"at"`
}

// Conversion is a payment that reached paid.
type Conversion struct {
	SessionID   string             `json:"session_id"`
	PaymentID   string             `json:"payment_id"`
	Kind        models.PaymentKind `json:"kind"`
	Item        string             `json:"item"`
	AmountCents int64              `json:"amount_cents"`
	Currency    string             `json:"currency"`
	UTMSource   string             `json:"utm_source,omitempty"`
	UTMCampaign string             `json:"utm_campaign,omitempty"`
	ClickID     string             `json:"click_id,omitempty"`
	At          time.Time          `json:"at"`
}

// adEvent is the attribution payload. It never carries contact details.
type adEvent struct {
	Event       string    `json:"event"`
	SessionID   string    `json:"session_id"`
	ClickID     string    `json:"click_id,omitempty"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	Value       int64     `json:"value_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	At          time.Time `json:"at"`
}

// Sinks receives notification events. Implementations must not block.
type Sinks interface {
	CaptureEmailLead(ctx context.Context, lead Lead)
	LogIntake(ctx context.Context, rec IntakeRecord)
	TrackConversion(ctx context.Context, conv Conversion)
}

// Deliverer sends one event to a backend.
type Deliverer interface {
	Deliver(ctx context.Context, eventType string, payload any) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) CaptureEmailLead(context.Context, Lead)     {}
func (Nop) LogIntake(context.Context, IntakeRecord)     {}
func (Nop) TrackConversion(context.Context, Conversion) {}
