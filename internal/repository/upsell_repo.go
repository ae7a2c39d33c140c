package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/prayerline/internal/models"
)

// SQLiteUpsellRepository implements UpsellRepository for SQLite/libsql.
type SQLiteUpsellRepository struct {
	db *sql.DB
}

// NewSQLiteUpsellRepository creates a new SQLite upsell repository.
func NewSQLiteUpsellRepository(db *sql.DB) *SQLiteUpsellRepository {
	return &SQLiteUpsellRepository{db: db}
}

// Get retrieves the chain record for an original session, or nil if the
// chain has not been started.
func (r *SQLiteUpsellRepository) Get(ctx context.Context, originalSessionID string, chain models.UpsellChain) (*models.UpsellSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, original_session_id, chain, phase, purchase_types_json, declined_json,
			upsell1_outcome_json, history_json, created_at, updated_at
		FROM upsell_sessions
		WHERE original_session_id = ? AND chain = ?
	`, originalSessionID, int(chain))

	var u models.UpsellSession
	var chainNum int
	var phase, purchasesJSON, declinedJSON, historyJSON, createdAt, updatedAt string
	var outcomeJSON sql.NullString

	err := row.Scan(&u.ID, &u.OriginalSessionID, &chainNum, &phase, &purchasesJSON, &declinedJSON,
		&outcomeJSON, &historyJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Chain = models.UpsellChain(chainNum)
	u.Phase = models.UpsellPhase(phase)
	if err := json.Unmarshal([]byte(purchasesJSON), &u.PurchaseTypes); err != nil {
		return nil, fmt.Errorf("failed to decode purchase types: %w", err)
	}
	if err := json.Unmarshal([]byte(declinedJSON), &u.Declined); err != nil {
		return nil, fmt.Errorf("failed to decode declined offers: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &u.History); err != nil {
		return nil, fmt.Errorf("failed to decode upsell history: %w", err)
	}
	if outcomeJSON.Valid {
		var out models.UpsellOutcome
		if err := json.Unmarshal([]byte(outcomeJSON.String), &out); err != nil {
			return nil, fmt.Errorf("failed to decode upsell1 outcome: %w", err)
		}
		u.Upsell1Outcome = &out
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &u, nil
}

// upsertUpsell inserts a chain record or updates its mutable columns.
// upsell1_outcome_json is written on insert only.
func upsertUpsell(ctx context.Context, tx execer, u *models.UpsellSession) error {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	purchases, err := json.Marshal(nonNil(u.PurchaseTypes))
	if err != nil {
		return err
	}
	declined, err := json.Marshal(nonNil(u.Declined))
	if err != nil {
		return err
	}
	history, err := json.Marshal(nonNil(u.History))
	if err != nil {
		return err
	}
	var outcome sql.NullString
	if u.Upsell1Outcome != nil {
		data, err := json.Marshal(u.Upsell1Outcome)
		if err != nil {
			return err
		}
		outcome = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO upsell_sessions (id, original_session_id, chain, phase, purchase_types_json, declined_json,
			upsell1_outcome_json, history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(original_session_id, chain) DO UPDATE SET
			phase = excluded.phase,
			purchase_types_json = excluded.purchase_types_json,
			declined_json = excluded.declined_json,
			history_json = excluded.history_json,
			updated_at = excluded.updated_at
	`,
		u.ID, u.OriginalSessionID, int(u.Chain), string(u.Phase), string(purchases), string(declined),
		outcome, string(history), u.CreatedAt.Format(time.RFC3339), u.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upsell session: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
