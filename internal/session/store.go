// Package session owns the persisted authentication record and the guard
// that gates navigation on it.
//
// The store keeps exactly one row and always serializes the whole Session as
// a single value. There is deliberately no way to update the authenticated
// flag and the identity separately: the classic corruption where a reader
// observes authenticated=true next to a missing identity cannot be written
// in the first place.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/domain"
)

// Store handles session persistence in session.db.
// Single writer: only Login and Logout mutate the record.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a new session store
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("repository", "session").Logger(),
	}
}

// InitSchema creates the session table if it doesn't exist.
// The CHECK constraint pins the table to a single row.
func (s *Store) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			record TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session table: %w", err)
	}
	return nil
}

// Write persists the full session record atomically. Identity and flag
// travel in one serialized value; there is no sequential two-step write.
func (s *Store) Write(session *domain.Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if session.Authenticated && !session.Valid() {
		return fmt.Errorf("refusing to persist authenticated session without identity")
	}

	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO session (id, record, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at
	`, string(record), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	return nil
}

// Read returns the current session record, or nil if none is stored.
// A record that fails to deserialize is treated as absent, not as an
// authenticated session with missing fields.
func (s *Store) Read() (*domain.Session, error) {
	var record string
	err := s.db.QueryRow("SELECT record FROM session WHERE id = 1").Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(record), &session); err != nil {
		s.log.Warn().Err(err).Msg("Stored session record is corrupt, treating as absent")
		return nil, nil
	}

	return &session, nil
}

// Clear removes the session record. Idempotent.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM session WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
