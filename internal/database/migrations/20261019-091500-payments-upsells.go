package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261019-091500",
		Description: "Add payments and upsell_sessions tables",
		Up: []string{
			// Payments - one row per attempt; gateway_ref and idempotency_key guard double capture
			`CREATE TABLE IF NOT EXISTS payments (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				prayer_id TEXT,
				kind TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT '',
				offer_type TEXT NOT NULL DEFAULT '',
				amount_cents INTEGER NOT NULL,
				currency TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				gateway_ref TEXT NOT NULL UNIQUE,
				idempotency_key TEXT NOT NULL UNIQUE,
				attempt INTEGER NOT NULL DEFAULT 1,
				failure_reason TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				paid_at TEXT,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
				FOREIGN KEY (prayer_id) REFERENCES prayer_intentions(id) ON DELETE SET NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_session_id ON payments(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_session_offer ON payments(session_id, kind, offer_type, tier)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,

			// Upsell chains - at most one per (original session, chain)
			`CREATE TABLE IF NOT EXISTS upsell_sessions (
				id TEXT PRIMARY KEY,
				original_session_id TEXT NOT NULL,
				chain INTEGER NOT NULL,
				phase TEXT NOT NULL,
				purchase_types_json TEXT NOT NULL DEFAULT '[]',
				declined_json TEXT NOT NULL DEFAULT '[]',
				upsell1_outcome_json TEXT,
				history_json TEXT NOT NULL DEFAULT '[]',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(original_session_id, chain),
				FOREIGN KEY (original_session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`,
		},
	})
}
