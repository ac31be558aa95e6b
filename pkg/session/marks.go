package session

import (
	"sync"
	"time"
)

type markKey struct {
	playerID string
	userID   string
}

type mark struct {
	trackURI  string
	kind      string
	expiresAt time.Time
}

// Marks records, per player and listener, the last track submitted and until
// when a resubmission of the same track is suppressed. Each mark carries the
// kind of submission that produced it so callers can tell a completed
// scrobble apart from a lightweight now-playing update. Entries are
// ephemeral; a successful submission overwrites the previous one.
type Marks struct {
	mu    sync.Mutex
	marks map[markKey]mark
}

// NewMarks returns an empty mark table.
func NewMarks() *Marks {
	return &Marks{marks: make(map[markKey]mark)}
}

// Set records that trackURI was submitted as kind for (playerID, userID) and
// must not be submitted again before expiresAt.
func (m *Marks) Set(playerID, userID, trackURI, kind string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[markKey{playerID, userID}] = mark{trackURI: trackURI, kind: kind, expiresAt: expiresAt}
}

// Active reports whether a still-valid mark exists for exactly this track,
// returning the kind of submission that created it.
func (m *Marks) Active(playerID, userID, trackURI string, now time.Time) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.marks[markKey{playerID, userID}]
	if !ok || mk.trackURI != trackURI || !now.Before(mk.expiresAt) {
		return "", false
	}
	return mk.kind, true
}

// Forget drops the mark for one listener on one player.
func (m *Marks) Forget(playerID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, markKey{playerID, userID})
}

// DropPlayer removes every mark belonging to playerID, used when the audio
// node destroys the player.
func (m *Marks) DropPlayer(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.marks {
		if k.playerID == playerID {
			delete(m.marks, k)
		}
	}
}
