package repository

import (
	"bytes"
	"database/sql"
	"testing"
	"time"

	"github.com/jmylchreest/prayerline/internal/crypto"
	"github.com/jmylchreest/prayerline/internal/database/migrations"
	"github.com/jmylchreest/prayerline/internal/models"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func testEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	enc, err := crypto.NewEncryptor(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return enc
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t), testEncryptor(t))
}

// eachStore runs fn against the durable and the ephemeral implementation.
func eachStore(t *testing.T, fn func(t *testing.T, repos *Repositories)) {
	t.Helper()
	t.Run(ModeDurable, func(t *testing.T) {
		fn(t, setupTestRepos(t))
	})
	t.Run(ModeEphemeral, func(t *testing.T) {
		fn(t, NewMemoryRepositories(time.Hour))
	})
}

// newTestSession builds a session in await_name with one greeting message.
func newTestSession() *models.Session {
	return &models.Session{
		Bucket:        models.BucketUnset,
		Phase:         models.PhaseAwaitName,
		PaymentStatus: models.PaymentStatusNone,
		History: []models.Message{
			{Role: models.RoleAssistant, Content: "Welcome.", Phase: string(models.PhaseGreeting)},
		},
	}
}

// newTestPayment builds a pending tier payment for a session.
func newTestPayment(sessionID, ref string) *models.Payment {
	return &models.Payment{
		SessionID:      sessionID,
		Kind:           models.PaymentKindTier,
		Tier:           "small_candle",
		AmountCents:    900,
		Currency:       "usd",
		Status:         models.PaymentStatusPending,
		GatewayRef:     ref,
		IdempotencyKey: "checkout:" + sessionID + ":small_candle:1",
		Attempt:        1,
	}
}
