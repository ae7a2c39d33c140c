package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/prayerline/internal/crypto"
	"github.com/jmylchreest/prayerline/internal/models"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const sessionColumns = `id, user_name, user_email_encrypted, bucket, phase, person_name, relationship,
	situation, hope, prayer_text, prayer_source, ready_for_payment, payment_status,
	inappropriate_count, crisis_flag, deepening_turns, gateway_customer_id, payment_method_id,
	utm_source, utm_campaign, click_id, version, created_at, updated_at`

// SQLiteSessionStore implements SessionStore for SQLite/libsql.
type SQLiteSessionStore struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

// NewSQLiteSessionStore creates a new SQLite session store.
func NewSQLiteSessionStore(db *sql.DB, enc *crypto.Encryptor) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db, enc: enc}
}

// Create inserts a new session together with its initial history.
func (r *SQLiteSessionStore) Create(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.Version = 1

	email, err := r.enc.EncryptNullable(s.UserEmail)
	if err != nil {
		return fmt.Errorf("failed to encrypt email: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.UserName, email, string(s.Bucket), string(s.Phase),
		s.PersonName, s.Relationship, s.Situation, s.Hope, s.PrayerText, string(s.PrayerSource),
		s.ReadyForPayment, string(s.PaymentStatus), s.InappropriateCount, s.CrisisFlag, s.DeepeningTurns,
		nullString(s.GatewayCustomerID), nullString(s.PaymentMethodID),
		s.UTMSource, s.UTMCampaign, s.ClickID, s.Version,
		s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := insertMessages(ctx, tx, s.ID, 0, s.History); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the session with its full history, or nil if absent.
func (r *SQLiteSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s, err := r.scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil || s == nil {
		return s, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT role, content, phase, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m models.Message
		var role, createdAt string
		if err := rows.Scan(&role, &m.Content, &m.Phase, &createdAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.History = append(s.History, m)
	}

	return s, rows.Err()
}

// Update runs fn against a copy of the latest session and persists the
// result and its TurnWrites in one transaction guarded by the version column.
// fn runs outside the transaction so it may call slow collaborators.
func (r *SQLiteSessionStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.Session, error) {
	prev, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, ErrSessionNotFound
	}

	next := prev.Clone()
	writes, err := fn(next)
	if err != nil {
		return nil, err
	}
	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	if err := checkAppendOnly(prev.History, next.History); err != nil {
		return nil, err
	}

	email, err := r.enc.EncryptNullable(next.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next.UpdatedAt = time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			user_name = ?, user_email_encrypted = ?, bucket = ?, phase = ?,
			person_name = ?, relationship = ?, situation = ?, hope = ?,
			prayer_text = ?, prayer_source = ?, ready_for_payment = ?, payment_status = ?,
			inappropriate_count = ?, crisis_flag = ?, deepening_turns = ?,
			gateway_customer_id = ?, payment_method_id = ?,
			utm_source = ?, utm_campaign = ?, click_id = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		next.UserName, email, string(next.Bucket), string(next.Phase),
		next.PersonName, next.Relationship, next.Situation, next.Hope,
		next.PrayerText, string(next.PrayerSource), next.ReadyForPayment, string(next.PaymentStatus),
		next.InappropriateCount, next.CrisisFlag, next.DeepeningTurns,
		nullString(next.GatewayCustomerID), nullString(next.PaymentMethodID),
		next.UTMSource, next.UTMCampaign, next.ClickID,
		next.UpdatedAt.Format(time.RFC3339),
		id, prev.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}
	next.Version = prev.Version + 1

	if err := insertMessages(ctx, tx, id, len(prev.History), next.History[len(prev.History):]); err != nil {
		return nil, err
	}
	if err := applyTurnWrites(ctx, tx, writes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// applyTurnWrites writes the rows that accompany a session update.
func applyTurnWrites(ctx context.Context, tx execer, w *TurnWrites) error {
	if w == nil {
		return nil
	}
	if w.Intention != nil {
		if err := insertIntention(ctx, tx, w.Intention); err != nil {
			return err
		}
	}
	for _, p := range w.NewPayments {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
	}
	for _, c := range w.PaymentChanges {
		if err := applyPaymentChange(ctx, tx, c); err != nil {
			return err
		}
	}
	if w.Upsell != nil {
		if err := upsertUpsell(ctx, tx, w.Upsell); err != nil {
			return err
		}
	}
	return nil
}

func insertMessages(ctx context.Context, tx execer, sessionID string, startSeq int, msgs []models.Message) error {
	for i, m := range msgs {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_messages (session_id, seq, role, content, phase, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sessionID, startSeq+i, string(m.Role), m.Content, m.Phase, createdAt.Format(time.RFC3339))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to append message: %w", err)
		}
	}
	return nil
}

func (r *SQLiteSessionStore) scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	var email, personName, relationship, situation, hope, prayerText sql.NullString
	var customerID, methodID sql.NullString
	var bucket, phase, source, payStatus, createdAt, updatedAt string

	err := row.Scan(
		&s.ID, &s.UserName, &email, &bucket, &phase,
		&personName, &relationship, &situation, &hope, &prayerText, &source,
		&s.ReadyForPayment, &payStatus, &s.InappropriateCount, &s.CrisisFlag, &s.DeepeningTurns,
		&customerID, &methodID,
		&s.UTMSource, &s.UTMCampaign, &s.ClickID, &s.Version,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.UserEmail, err = r.enc.DecryptNullable(email)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt email: %w", err)
	}
	s.Bucket = models.Bucket(bucket)
	s.Phase = models.Phase(phase)
	s.PrayerSource = models.PrayerSource(source)
	s.PaymentStatus = models.PaymentStatus(payStatus)
	s.PersonName = stringPtr(personName)
	s.Relationship = stringPtr(relationship)
	s.Situation = stringPtr(situation)
	s.Hope = stringPtr(hope)
	s.PrayerText = stringPtr(prayerText)
	s.GatewayCustomerID = customerID.String
	s.PaymentMethodID = methodID.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &s, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
