package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/prayerline/internal/models"
)

const paymentColumns = `id, session_id, prayer_id, kind, tier, offer_type, amount_cents, currency,
	status, gateway_ref, idempotency_key, attempt, failure_reason, created_at, updated_at, paid_at`

// SQLitePaymentRepository implements PaymentRepository for SQLite/libsql.
type SQLitePaymentRepository struct {
	db *sql.DB
}

// NewSQLitePaymentRepository creates a new SQLite payment repository.
func NewSQLitePaymentRepository(db *sql.DB) *SQLitePaymentRepository {
	return &SQLitePaymentRepository{db: db}
}

// Get retrieves a payment by ID.
func (r *SQLitePaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
}

// GetByGatewayRef retrieves a payment by the gateway transaction identifier.
func (r *SQLitePaymentRepository) GetByGatewayRef(ctx context.Context, ref string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_ref = ?`, ref))
}

// ListBySession retrieves all payments for a session, oldest first.
func (r *SQLitePaymentRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE session_id = ?
		ORDER BY created_at, attempt, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// LatestForOffer returns the highest attempt for a tier or upsell offer.
func (r *SQLitePaymentRepository) LatestForOffer(ctx context.Context, sessionID string, kind models.PaymentKind, item string) (*models.Payment, error) {
	column := "offer_type"
	if kind == models.PaymentKindTier {
		column = "tier"
	}
	return scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE session_id = ? AND kind = ? AND `+column+` = ?
		ORDER BY attempt DESC
		LIMIT 1
	`, sessionID, string(kind), item))
}

func insertPayment(ctx context.Context, tx execer, p *models.Payment) error {
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Attempt == 0 {
		p.Attempt = 1
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.SessionID, p.PrayerID, string(p.Kind), p.Tier, string(p.OfferType), p.AmountCents, p.Currency,
		string(p.Status), p.GatewayRef, p.IdempotencyKey, p.Attempt, nullString(p.FailureReason),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339), nullTime(p.PaidAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// applyPaymentChange flips status only while the row is still in c.From.
func applyPaymentChange(ctx context.Context, tx execer, c PaymentStatusChange) error {
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var paidAt *time.Time
	if c.To == models.PaymentStatusPaid {
		paidAt = &at
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = ?, failure_reason = COALESCE(?, failure_reason), paid_at = COALESCE(?, paid_at), updated_at = ?
		WHERE id = ? AND status = ?
	`, string(c.To), nullString(c.FailureReason), nullTime(paidAt), at.Format(time.RFC3339), c.PaymentID, string(c.From))
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrDuplicatePayment
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var prayerID, failureReason, paidAt sql.NullString
	var kind, offerType, status, createdAt, updatedAt string

	err := row.Scan(
		&p.ID, &p.SessionID, &prayerID, &kind, &p.Tier, &offerType, &p.AmountCents, &p.Currency,
		&status, &p.GatewayRef, &p.IdempotencyKey, &p.Attempt, &failureReason,
		&createdAt, &updatedAt, &paidAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.PrayerID = stringPtr(prayerID)
	p.Kind = models.PaymentKind(kind)
	p.OfferType = models.OfferType(offerType)
	p.Status = models.PaymentStatus(status)
	p.FailureReason = failureReason.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	p.PaidAt = parseNullTime(paidAt)

	return &p, nil
}
