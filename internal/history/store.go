// Package history persists conversation messages and user profile
// summaries. It is a passive collaborator: the pipeline reads recent
// turns for context and appends new ones best-effort.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrEmptySessionID means a session identifier was required.
var ErrEmptySessionID = errors.New("session ID cannot be empty")

// Config holds history store configuration.
type Config struct {
	Path string `koanf:"path"`

	// MaxTurns is how many recent messages context assembly reads.
	MaxTurns int `koanf:"max_turns"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		Path:     "data/history.db",
		MaxTurns: 6,
	}
}

// Role is who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored conversation turn.
type Message struct {
	ID        string
	SessionID string
	UserID    string
	Role      Role
	Content   string
	ModelKey  string
	CreatedAt time.Time
}

// Store is the SQLite-backed history store.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger
}

// NewStore opens (creating if needed) the history database.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history store path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// One connection: sqlite has a single writer, and with this driver
	// each pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, cfg: cfg, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model_key TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}
	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, created_at)`); err != nil {
		return fmt.Errorf("creating messages index: %w", err)
	}
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one message. A missing ID or timestamp is filled in;
// the generated ID is returned.
func (s *Store) Append(ctx context.Context, msg Message) (string, error) {
	if msg.SessionID == "" {
		return "", ErrEmptySessionID
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, user_id, role, content, model_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, string(msg.Role), msg.Content,
		msg.ModelKey, msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("inserting message: %w", err)
	}
	return msg.ID, nil
}

// Recent returns the last limit messages of a session in chronological
// order. limit <= 0 uses the configured default.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if limit <= 0 {
		limit = s.cfg.MaxTurns
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, role, content, model_key, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role, ts string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &role, &m.Content, &m.ModelKey, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query order is newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LastUserMessage returns the content of the most recent user turn in
// the session, or "" when there is none.
func (s *Store) LastUserMessage(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM messages
		WHERE session_id = ? AND role = ?
		ORDER BY created_at DESC LIMIT 1`,
		sessionID, string(RoleUser),
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying last user message: %w", err)
	}
	return content, nil
}

// ProfileSummary returns the stored profile summary for a user, or ""
// when none exists.
func (s *Store) ProfileSummary(ctx context.Context, userID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM profiles WHERE user_id = ?`, userID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying profile: %w", err)
	}
	return summary, nil
}

// SetProfileSummary upserts the profile summary for a user.
func (s *Store) SetProfileSummary(ctx context.Context, userID, summary string) error {
	if userID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at`,
		userID, summary, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}
