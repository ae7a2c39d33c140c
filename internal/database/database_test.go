package database

import (
	"context"
	"testing"

	"github.com/jmylchreest/prayerline/internal/database/migrations"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	for _, table := range []string{"sessions", "session_messages", "prayer_intentions", "payments", "upsell_sessions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	st, err := migrations.GetStatus(db)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Pending != 0 {
		t.Errorf("Pending = %d, want 0", st.Pending)
	}
	if st.Applied == 0 || st.Latest == "" {
		t.Errorf("status = %+v, want applied migrations", st)
	}
}

func TestReady(t *testing.T) {
	db, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := Ready(context.Background(), db); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	db.Close()
	if _, err := Ready(context.Background(), db); err == nil {
		t.Error("Ready() on a closed db should fail")
	}
}
