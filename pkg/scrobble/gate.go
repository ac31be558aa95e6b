// Package scrobble implements the submission pipeline: deciding which
// listeners in a voice channel qualify for a provider call, dispatching the
// calls, and reacting to provider failures. Track eligibility itself lives
// in pkg/track; this package handles the per-user half.
package scrobble

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/metrics"
	"Scrobble-Bridge-Go/pkg/session"
)

// Listener is one member of the voice channel roster as reported by the
// audio node.
type Listener struct {
	UserID string
	// Bot marks automated accounts, which never scrobble.
	Bot bool
	// SelfDeaf and Deaf mirror the member's voice state; a deafened
	// listener is not hearing the track.
	SelfDeaf bool
	Deaf     bool
}

// Candidate is a listener that passed the gate, carrying the session to
// submit with.
type Candidate struct {
	Session session.Session
	// ChosenByListener is true when the listener queued the track
	// themselves.
	ChosenByListener bool
}

// Gate filters a channel roster down to the listeners a submission should be
// made for.
type Gate struct {
	Sessions *session.Cache
	Marks    *session.Marks
	Log      logrus.FieldLogger
	Metrics  *metrics.Set
}

// User skip reasons, used as metrics labels.
const (
	skipBot        = "bot"
	skipDeafened   = "deafened"
	skipUnlinked   = "unlinked"
	skipDisabled   = "disabled"
	skipDedup      = "dedup"
	skipStoreError = "store_error"
)

func (g *Gate) skipUser(reason string) {
	if g.Metrics != nil {
		g.Metrics.UserSkips.WithLabelValues(reason).Inc()
	}
}

// SelectEligible applies the per-user rules to roster: automated accounts,
// deafened members, users without a linked session or with scrobbling
// disabled, and users whose last submission for exactly this track is still
// inside its dedup window are all dropped. A now-playing mark only blocks
// further now-playing updates; the scrobble at track end must still go
// through. Store failures skip the affected user only.
func (g *Gate) SelectEligible(ctx context.Context, roster []Listener, playerID, trackURI, requester string, kind Kind, now time.Time) []Candidate {
	var out []Candidate
	for _, l := range roster {
		if l.Bot {
			g.skipUser(skipBot)
			continue
		}
		if l.SelfDeaf || l.Deaf {
			g.skipUser(skipDeafened)
			continue
		}
		s, err := g.Sessions.Lookup(ctx, l.UserID)
		if err != nil {
			g.Log.WithError(err).WithField("user_id", l.UserID).Warn("session lookup failed")
			g.skipUser(skipStoreError)
			continue
		}
		if !s.Linked() {
			g.skipUser(skipUnlinked)
			continue
		}
		if !s.ScrobbleEnabled {
			g.skipUser(skipDisabled)
			continue
		}
		if trackURI != "" {
			markKind, ok := g.Marks.Active(playerID, l.UserID, trackURI, now)
			if ok && (kind == KindNowPlaying || markKind == KindScrobble.String()) {
				g.skipUser(skipDedup)
				continue
			}
		}
		out = append(out, Candidate{
			Session:          s,
			ChosenByListener: requester == l.UserID,
		})
	}
	return out
}
