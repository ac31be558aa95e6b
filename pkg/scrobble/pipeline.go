package scrobble

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/metrics"
	"Scrobble-Bridge-Go/pkg/session"
	"Scrobble-Bridge-Go/pkg/track"
)

// Defaults for the voice-connection wait.
const (
	DefaultVoiceAttempts = 3
	DefaultVoiceBackoff  = 2 * time.Second
)

// Pipeline ties classifier, gate and submitter together and is the entry
// point the audio-node listener dispatches events into.
type Pipeline struct {
	Gate      *Gate
	Submitter *Submitter
	Marks     *session.Marks
	// Voice confirms the bridge's own voice connection before a batch is
	// attempted. Nil skips the check (used by tests).
	Voice         VoiceProbe
	VoiceAttempts int
	VoiceBackoff  time.Duration
	Log           logrus.FieldLogger
	Metrics       *metrics.Set
}

// PlayerEvent is a track lifecycle notification for one player.
type PlayerEvent struct {
	PlayerID string
	Track    track.Track
	// Reason is the end reason for track-end events.
	Reason string
	// Played is how long the track actually played.
	Played time.Duration
	// Roster is the bot's current voice channel membership.
	Roster []Listener
}

// HandleTrackStart submits a now-playing update for every eligible listener.
func (p *Pipeline) HandleTrackStart(ctx context.Context, ev PlayerEvent) {
	p.run(ctx, ev, track.Event{Kind: track.EventNowPlaying}, KindNowPlaying)
}

// HandleTrackEnd submits a scrobble for every eligible listener when the
// track qualifies.
func (p *Pipeline) HandleTrackEnd(ctx context.Context, ev PlayerEvent) {
	p.run(ctx, ev, track.Event{
		Kind:   track.EventTrackEnd,
		Reason: ev.Reason,
		Played: ev.Played,
	}, KindScrobble)
}

// HandleVoiceJoin catches a listener up with the current track after they
// join the channel mid-play. The dedup mark stops double submissions when
// they rejoin during the same track.
func (p *Pipeline) HandleVoiceJoin(ctx context.Context, ev PlayerEvent, joined Listener) {
	if joined.Bot {
		return
	}
	if ev.Track.URI != "" {
		if _, ok := p.Marks.Active(ev.PlayerID, joined.UserID, ev.Track.URI, time.Now()); ok {
			return
		}
	}
	ev.Roster = []Listener{joined}
	p.HandleTrackStart(ctx, ev)
}

// HandlePlayerDestroyed drops all dedup state for a player the audio node
// tore down.
func (p *Pipeline) HandlePlayerDestroyed(playerID string) {
	p.Marks.DropPlayer(playerID)
}

func (p *Pipeline) run(ctx context.Context, ev PlayerEvent, tev track.Event, kind Kind) {
	sub, err := track.Classify(ev.Track, tev)
	if err != nil {
		var sk *track.SkipError
		if errors.As(err, &sk) && p.Metrics != nil {
			p.Metrics.TrackSkips.WithLabelValues(sk.Reason).Inc()
		}
		return
	}

	if p.Voice != nil {
		attempts, backoff := p.VoiceAttempts, p.VoiceBackoff
		if attempts <= 0 {
			attempts = DefaultVoiceAttempts
		}
		if backoff <= 0 {
			backoff = DefaultVoiceBackoff
		}
		if !AwaitVoice(ctx, p.Voice, ev.PlayerID, attempts, backoff) {
			p.Log.WithField("player_id", ev.PlayerID).Debug("voice connection not confirmed, dropping batch")
			return
		}
	}

	now := time.Now()
	cands := p.Gate.SelectEligible(ctx, ev.Roster, ev.PlayerID, sub.TrackURI, sub.Requester, kind, now)
	if len(cands) == 0 {
		return
	}
	p.Submitter.SubmitBatch(ctx, ev.PlayerID, sub, cands, kind)
}
