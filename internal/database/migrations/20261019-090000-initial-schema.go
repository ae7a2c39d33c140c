package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261019-090000",
		Description: "Initial schema: sessions, session messages and prayer intentions",
		Up: []string{
			// Sessions - one row per visitor conversation
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_name TEXT NOT NULL DEFAULT '',
				user_email_encrypted TEXT,
				bucket TEXT NOT NULL DEFAULT 'unset',
				phase TEXT NOT NULL,
				person_name TEXT,
				relationship TEXT,
				situation TEXT,
				hope TEXT,
				prayer_text TEXT,
				prayer_source TEXT NOT NULL DEFAULT '',
				ready_for_payment INTEGER NOT NULL DEFAULT 0,
				payment_status TEXT NOT NULL DEFAULT 'none',
				inappropriate_count INTEGER NOT NULL DEFAULT 0,
				crisis_flag INTEGER NOT NULL DEFAULT 0,
				deepening_turns INTEGER NOT NULL DEFAULT 0,
				gateway_customer_id TEXT,
				payment_method_id TEXT,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase)`,

			// Append-only conversation log; seq is the position in the history
			`CREATE TABLE IF NOT EXISTS session_messages (
				session_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				phase TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (session_id, seq),
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`,

			// Prayer intentions - created once per session at confirmation
			`CREATE TABLE IF NOT EXISTS prayer_intentions (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL UNIQUE,
				bucket TEXT NOT NULL,
				user_name TEXT NOT NULL DEFAULT '',
				person_name TEXT,
				relationship TEXT,
				situation TEXT,
				hope TEXT,
				prayer_text TEXT NOT NULL,
				prayer_source TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				created_at TEXT NOT NULL,
				delivered_at TEXT,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_prayer_intentions_status ON prayer_intentions(status)`,
		},
	})
}
