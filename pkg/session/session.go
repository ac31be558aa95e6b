// Package session holds the per-user scrobble credentials and the two small
// in-memory structures the pipeline synchronizes on: a sharded cache in
// front of the persistent session store and the per-player dedup marks that
// stop the same track being logged twice for one listener.
package session

import "context"

// Session is a user's link to the scrobble provider. An empty SessionKey
// means the account is not linked.
type Session struct {
	UserID     string
	SessionKey string
	Username   string
	// ScrobbleEnabled gates submissions without unlinking the account.
	ScrobbleEnabled bool
}

// Linked reports whether the session can be used for provider calls.
func (s Session) Linked() bool { return s.SessionKey != "" }

// Store is the persistent backing for sessions. A lookup for an unknown user
// returns the zero session for that ID, not an error.
type Store interface {
	GetSession(ctx context.Context, userID string) (Session, error)
	SetSession(ctx context.Context, s Session) error
	// ClearSessionKey drops the credential but keeps the row, used when the
	// provider reports the key revoked.
	ClearSessionKey(ctx context.Context, userID string) error
}
