package store

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'premium',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		account_type TEXT NOT NULL,
		subtype TEXT,
		product_name TEXT NOT NULL,
		balance_cad REAL NOT NULL DEFAULT 0,
		interest_rate REAL,
		contribution_room_remaining REAL,
		contribution_deadline TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		ticker TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		shares REAL NOT NULL,
		avg_cost_cad REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT 'CAD',
		asset_type TEXT NOT NULL DEFAULT 'stock',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		transaction_type TEXT NOT NULL,
		ticker TEXT,
		shares REAL,
		price_cad REAL NOT NULL DEFAULT 0,
		total_cad REAL NOT NULL DEFAULT 0,
		notes TEXT,
		executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_ticker ON transactions(user_id, ticker)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		session_id TEXT NOT NULL UNIQUE,
		messages TEXT NOT NULL DEFAULT '[]',
		last_findings TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id)`,
	`CREATE TABLE IF NOT EXISTS monitor_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		alert_type TEXT NOT NULL,
		message TEXT NOT NULL,
		ticker TEXT,
		dollar_impact REAL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		surfaced_at TIMESTAMP,
		dismissed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monitor_alerts_pending
		ON monitor_alerts(user_id, dismissed_at, surfaced_at)`,
	`CREATE TABLE IF NOT EXISTS advisor_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		headline TEXT NOT NULL,
		full_picture TEXT NOT NULL,
		do_not_do TEXT NOT NULL,
		total_opportunity INTEGER NOT NULL DEFAULT 0,
		chips TEXT NOT NULL DEFAULT '[]',
		generated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_advisor_cache_user ON advisor_cache(user_id, generated_at)`,
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
