package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/prayerline/internal/models"
)

const intentionColumns = `id, session_id, bucket, user_name, person_name, relationship, situation, hope,
	prayer_text, prayer_source, status, created_at, delivered_at`

// SQLiteIntentionRepository implements IntentionRepository for SQLite/libsql.
type SQLiteIntentionRepository struct {
	db *sql.DB
}

// NewSQLiteIntentionRepository creates a new SQLite intention repository.
func NewSQLiteIntentionRepository(db *sql.DB) *SQLiteIntentionRepository {
	return &SQLiteIntentionRepository{db: db}
}

// Get retrieves an intention by ID.
func (r *SQLiteIntentionRepository) Get(ctx context.Context, id string) (*models.PrayerIntention, error) {
	return scanIntention(r.db.QueryRowContext(ctx, `SELECT `+intentionColumns+` FROM prayer_intentions WHERE id = ?`, id))
}

// GetBySession retrieves the intention created for a session.
func (r *SQLiteIntentionRepository) GetBySession(ctx context.Context, sessionID string) (*models.PrayerIntention, error) {
	return scanIntention(r.db.QueryRowContext(ctx, `SELECT `+intentionColumns+` FROM prayer_intentions WHERE session_id = ?`, sessionID))
}

// MarkDelivered flips a pending intention to delivered.
func (r *SQLiteIntentionRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE prayer_intentions SET status = ?, delivered_at = ?
		WHERE id = ? AND status = ?
	`, string(models.IntentionStatusDelivered), at.UTC().Format(time.RFC3339), id, string(models.IntentionStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark intention delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

func insertIntention(ctx context.Context, tx execer, in *models.PrayerIntention) error {
	if in.ID == "" {
		in.ID = ulid.Make().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Status == "" {
		in.Status = models.IntentionStatusPending
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO prayer_intentions (`+intentionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.ID, in.SessionID, string(in.Bucket), in.UserName,
		in.PersonName, in.Relationship, in.Situation, in.Hope,
		in.PrayerText, string(in.PrayerSource), string(in.Status),
		in.CreatedAt.Format(time.RFC3339), nullTime(in.DeliveredAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert intention: %w", err)
	}
	return nil
}

func scanIntention(row *sql.Row) (*models.PrayerIntention, error) {
	var in models.PrayerIntention
	var personName, relationship, situation, hope, deliveredAt sql.NullString
	var bucket, source, status, createdAt string

	err := row.Scan(
		&in.ID, &in.SessionID, &bucket, &in.UserName,
		&personName, &relationship, &situation, &hope,
		&in.PrayerText, &source, &status, &createdAt, &deliveredAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	in.Bucket = models.Bucket(bucket)
	in.PrayerSource = models.PrayerSource(source)
	in.Status = models.IntentionStatus(status)
	in.PersonName = stringPtr(personName)
	in.Relationship = stringPtr(relationship)
	in.Situation = stringPtr(situation)
	in.Hope = stringPtr(hope)
	in.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	in.DeliveredAt = parseNullTime(deliveredAt)

	return &in, nil
}
