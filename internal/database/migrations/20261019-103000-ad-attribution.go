package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261019-103000",
		Description: "Add ad attribution columns to sessions",
		Up: []string{
			`ALTER TABLE sessions ADD COLUMN utm_source TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE sessions ADD COLUMN utm_campaign TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE sessions ADD COLUMN click_id TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_click_id ON sessions(click_id)`,
		},
	})
}
