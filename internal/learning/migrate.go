package learning

import "fmt"

type migration struct {
	version int
	name    string
	up      func() error
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var version int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return fmt.Errorf("reading migration version: %w", err)
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := m.up(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.version, m.name); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}

	return nil
}

func (s *Store) migration001InitialSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			model_used TEXT NOT NULL,
			explicit_rating INTEGER,
			implicit_signal TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			complexity INTEGER NOT NULL DEFAULT 0,
			response_time_ms REAL NOT NULL DEFAULT 0,
			timestamp TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating feedback_events table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_feedback_user_message
		ON feedback_events(user_id, message_id)`); err != nil {
		return fmt.Errorf("creating feedback user index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_feedback_timestamp
		ON feedback_events(timestamp)`); err != nil {
		return fmt.Errorf("creating feedback timestamp index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS learning_insights (
			category TEXT NOT NULL,
			key TEXT NOT NULL,
			value REAL NOT NULL,
			confidence REAL NOT NULL,
			sample_size INTEGER NOT NULL,
			last_updated TEXT NOT NULL,
			PRIMARY KEY (category, key)
		)`); err != nil {
		return fmt.Errorf("creating learning_insights table: %w", err)
	}

	return nil
}
