package scrobble

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/lastfm"
	"Scrobble-Bridge-Go/pkg/metrics"
	"Scrobble-Bridge-Go/pkg/session"
	"Scrobble-Bridge-Go/pkg/track"
)

// Kind selects the provider call a batch performs.
type Kind int

const (
	// KindNowPlaying is the lightweight currently-listening update.
	KindNowPlaying Kind = iota
	// KindScrobble logs a completed play.
	KindScrobble
)

func (k Kind) String() string {
	if k == KindScrobble {
		return "scrobble"
	}
	return "now_playing"
}

// Provider is the subset of the scrobble provider client the submitter uses.
// It allows the concrete client to be replaced in tests.
type Provider interface {
	UpdateNowPlaying(ctx context.Context, np lastfm.NowPlaying) error
	SubmitScrobble(ctx context.Context, s lastfm.Scrobble) error
}

// Submitter dispatches one provider call per candidate. Candidates are
// independent; a failure for one listener never aborts the others.
type Submitter struct {
	Provider Provider
	Store    session.Store
	Cache    *session.Cache
	Marks    *session.Marks
	Log      logrus.FieldLogger
	Metrics  *metrics.Set
}

// SubmitBatch performs the kind call for every candidate concurrently and
// waits for all of them. A successful call records a dedup mark lasting the
// track's duration. An invalid-session response unlinks the user locally and
// drops their mark; any other error is logged and the batch continues.
func (s *Submitter) SubmitBatch(ctx context.Context, playerID string, sub track.Submission, cands []Candidate, kind Kind) {
	var wg sync.WaitGroup
	for _, c := range cands {
		wg.Add(1)
		go func(c Candidate) {
			defer wg.Done()
			s.submitOne(ctx, playerID, sub, c, kind)
		}(c)
	}
	wg.Wait()
}

func (s *Submitter) submitOne(ctx context.Context, playerID string, sub track.Submission, c Candidate, kind Kind) {
	log := s.Log.WithFields(logrus.Fields{
		"user_id":   c.Session.UserID,
		"player_id": playerID,
		"kind":      kind.String(),
	})

	var err error
	switch kind {
	case KindScrobble:
		err = s.Provider.SubmitScrobble(ctx, lastfm.Scrobble{
			Artist:           sub.Artist,
			Track:            sub.Title,
			Album:            sub.Album,
			Duration:         sub.Duration,
			SessionKey:       c.Session.SessionKey,
			ChosenByListener: c.ChosenByListener,
		})
	default:
		err = s.Provider.UpdateNowPlaying(ctx, lastfm.NowPlaying{
			Artist:     sub.Artist,
			Track:      sub.Title,
			Album:      sub.Album,
			Duration:   sub.Duration,
			SessionKey: c.Session.SessionKey,
		})
	}

	if err != nil {
		if lastfm.IsInvalidSession(err) {
			log.WithError(err).Info("session revoked, unlinking user")
			s.invalidate(ctx, playerID, c.Session.UserID)
			if s.Metrics != nil {
				s.Metrics.ProviderErrors.WithLabelValues("invalid_session").Inc()
			}
			return
		}
		log.WithError(err).Warn("submission failed")
		if s.Metrics != nil {
			s.Metrics.ProviderErrors.WithLabelValues("error").Inc()
		}
		return
	}

	// Untagged tracks get no mark; a shared empty URI would make distinct
	// tracks dedup against each other.
	if sub.TrackURI != "" {
		s.Marks.Set(playerID, c.Session.UserID, sub.TrackURI, kind.String(),
			time.Now().Add(time.Duration(sub.Duration)*time.Second))
	}
	if s.Metrics != nil {
		s.Metrics.Submissions.WithLabelValues(kind.String()).Inc()
	}
}

// invalidate clears the user's stored and cached credential and forgets any
// dedup mark. The next submission attempt sees an unlinked session.
func (s *Submitter) invalidate(ctx context.Context, playerID, userID string) {
	if err := s.Store.ClearSessionKey(ctx, userID); err != nil {
		s.Log.WithError(err).WithField("user_id", userID).Error("clearing revoked session failed")
	}
	s.Cache.Forget(userID)
	s.Marks.Forget(playerID, userID)
}
