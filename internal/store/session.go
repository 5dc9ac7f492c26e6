package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gotd/td/session"
	"github.com/jmoiron/sqlx"

	"github.com/botzhub/botstatus/internal/logger"
)

// SessionStore implements session.Storage on a sessions table row.
type SessionStore struct {
	db     *sqlx.DB
	name   string
	logger *slog.Logger
}

var _ session.Storage = (*SessionStore)(nil)

// NewSessionStore returns a store for the session row called name.
func NewSessionStore(db *sqlx.DB, name string, log *slog.Logger) *SessionStore {
	if log == nil {
		log = logger.Discard()
	}
	return &SessionStore{
		db:     db,
		name:   name,
		logger: log.With("component", "session_store"),
	}
}

// SessionName derives a row name from a string session, so that a changed
// SESSION value starts from a fresh row instead of a stale one.
func SessionName(stringSession string) string {
	sum := sha256.Sum256([]byte(stringSession))
	return hex.EncodeToString(sum[:8])
}

// LoadSession returns the stored session or session.ErrNotFound.
func (s *SessionStore) LoadSession(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM sessions WHERE name = ?`, s.name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load session", "name", s.name, "error", err)
		return nil, fmt.Errorf("failed to load session %s: %w", s.name, err)
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession inserts or replaces the session row.
func (s *SessionStore) StoreSession(ctx context.Context, data []byte) error {
	query := `
        INSERT INTO sessions (name, data, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at;
    `
	if _, err := s.db.ExecContext(ctx, query, s.name, data, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Failed to store session", "name", s.name, "error", err)
		return fmt.Errorf("failed to store session %s: %w", s.name, err)
	}
	s.logger.DebugContext(ctx, "Stored session", "name", s.name, "bytes", len(data))
	return nil
}
