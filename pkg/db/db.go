// Package db provides the persistence layer used by the application. It wraps
// a SQLite database holding the per-user scrobble sessions. The package is
// intentionally small; callers are expected to open a single DB instance
// using New and reuse it for all operations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"Scrobble-Bridge-Go/pkg/session"
)

// DB wraps a sql.DB connection and exposes the session store used by the
// scrobble pipeline.
type DB struct {
	*sql.DB
}

// Compile-time check that DB satisfies the store interface the pipeline
// depends on.
var _ session.Store = (*DB)(nil)

// New opens the SQLite database located at path. If the file does not exist
// it is created along with the required schema.
func New(path string) (*DB, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lastfm_sessions (
			user_id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			scrobble_enabled INTEGER NOT NULL DEFAULT 1
		)`,
	}
	for _, s := range stmts {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{d}, nil
}

// GetSession returns the stored session for userID. A user without a row is
// reported as an unlinked session with scrobbling enabled, which is the
// default state a fresh link writes over.
func (db *DB) GetSession(ctx context.Context, userID string) (session.Session, error) {
	var (
		s       = session.Session{UserID: userID}
		enabled int
	)
	err := db.QueryRowContext(ctx,
		`SELECT session_key, username, scrobble_enabled FROM lastfm_sessions WHERE user_id=?`,
		userID).Scan(&s.SessionKey, &s.Username, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{UserID: userID, ScrobbleEnabled: true}, nil
	}
	if err != nil {
		return session.Session{}, err
	}
	s.ScrobbleEnabled = enabled != 0
	return s, nil
}

// SetSession persists s, replacing any existing row for the user.
func (db *DB) SetSession(ctx context.Context, s session.Session) error {
	enabled := 0
	if s.ScrobbleEnabled {
		enabled = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO lastfm_sessions(user_id, session_key, username, scrobble_enabled) VALUES(?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET session_key=excluded.session_key, username=excluded.username, scrobble_enabled=excluded.scrobble_enabled`,
		s.UserID, s.SessionKey, s.Username, enabled)
	return err
}

// ClearSessionKey blanks the stored credential for userID while keeping the
// row, used when the provider reports the session revoked.
func (db *DB) ClearSessionKey(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE lastfm_sessions SET session_key='' WHERE user_id=?`, userID)
	return err
}
