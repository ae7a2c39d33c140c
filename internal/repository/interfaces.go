// Package repository defines the session store contract and its libsql and
// in-memory implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmylchreest/prayerline/internal/crypto"
	"github.com/jmylchreest/prayerline/internal/models"
)

// Store modes reported by Repositories.Mode.
const (
	ModeDurable   = "durable"
	ModeEphemeral = "ephemeral"
)

var (
	// ErrConflict is returned when the session changed between read and write,
	// or a unique constraint rejected one of the turn's rows.
	ErrConflict = errors.New("conflicting write")

	// ErrDuplicatePayment is returned when a conditional payment status flip
	// matched no row because it was already applied.
	ErrDuplicatePayment = errors.New("payment status already applied")

	// ErrHistoryRewritten is returned when a mutation shortens or edits the
	// session history instead of appending to it.
	ErrHistoryRewritten = errors.New("session history is append-only")

	// ErrSessionNotFound is returned by Update for an unknown id.
	ErrSessionNotFound = errors.New("session not found")
)

// PaymentStatusChange is a conditional status flip written with a turn.
// It only applies while the payment is still in From.
type PaymentStatusChange struct {
	PaymentID     string
	From          models.PaymentStatus
	To            models.PaymentStatus
	FailureReason string
	At            time.Time
}

// TurnWrites are the rows persisted atomically with a session update.
type TurnWrites struct {
	Intention      *models.PrayerIntention
	NewPayments    []*models.Payment
	PaymentChanges []PaymentStatusChange
	Upsell         *models.UpsellSession
}

// MutateFunc mutates a private copy of the session. Returning an error
// discards the copy and persists nothing.
type MutateFunc func(s *models.Session) (*TurnWrites, error)

// SessionStore persists sessions. Update is read-modify-write against the
// latest stored value; callers serialize turns for one id themselves.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*models.Session, error)
}

// PaymentRepository reads payments written through SessionStore.Update.
type PaymentRepository interface {
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByGatewayRef(ctx context.Context, ref string) (*models.Payment, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.Payment, error)
	// LatestForOffer returns the newest attempt for a tier or upsell offer.
	// item is the tier name for PaymentKindTier and the offer type otherwise.
	LatestForOffer(ctx context.Context, sessionID string, kind models.PaymentKind, item string) (*models.Payment, error)
}

// IntentionRepository reads prayer intentions and records delivery.
type IntentionRepository interface {
	Get(ctx context.Context, id string) (*models.PrayerIntention, error)
	GetBySession(ctx context.Context, sessionID string) (*models.PrayerIntention, error)
	// MarkDelivered flips pending to delivered. It reports false when the
	// intention was not pending.
	MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error)
}

// UpsellRepository reads upsell chain records.
type UpsellRepository interface {
	Get(ctx context.Context, originalSessionID string, chain models.UpsellChain) (*models.UpsellSession, error)
}

// Repositories holds all repository instances for one store mode.
type Repositories struct {
	Mode       string
	Sessions   SessionStore
	Payments   PaymentRepository
	Intentions IntentionRepository
	Upsells    UpsellRepository
}

// NewRepositories creates the durable libsql repositories.
// enc encrypts the visitor email column.
func NewRepositories(db *sql.DB, enc *crypto.Encryptor) *Repositories {
	return &Repositories{
		Mode:       ModeDurable,
		Sessions:   NewSQLiteSessionStore(db, enc),
		Payments:   NewSQLitePaymentRepository(db),
		Intentions: NewSQLiteIntentionRepository(db),
		Upsells:    NewSQLiteUpsellRepository(db),
	}
}

// NewMemoryRepositories creates the ephemeral in-process repositories.
// Sessions idle for longer than ttl are evicted with their related rows.
func NewMemoryRepositories(ttl time.Duration) *Repositories {
	m := NewMemoryStore(ttl)
	return &Repositories{
		Mode:       ModeEphemeral,
		Sessions:   m,
		Payments:   m.Payments(),
		Intentions: m.Intentions(),
		Upsells:    m.Upsells(),
	}
}

// checkAppendOnly verifies next.History extends prev.History unchanged.
func checkAppendOnly(prev, next []models.Message) error {
	if len(next) < len(prev) {
		return ErrHistoryRewritten
	}
	for i := range prev {
		if prev[i].Role != next[i].Role || prev[i].Content != next[i].Content || prev[i].Phase != next[i].Phase {
			return ErrHistoryRewritten
		}
	}
	return nil
}
