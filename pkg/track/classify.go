package track

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind distinguishes the two playback events that can lead to a
// provider call.
type EventKind int

const (
	// EventTrackEnd is a natural or forced end of playback and may produce
	// a full scrobble.
	EventTrackEnd EventKind = iota
	// EventNowPlaying is a track-start or listener-join update and only
	// produces a lightweight now-playing call.
	EventNowPlaying
)

// ReasonFinished is the end reason the audio node reports when a track played
// through to its end. Any other reason (replaced, stopped, load failed) makes
// a track-end event ineligible.
const ReasonFinished = "FINISHED"

// minDuration is the shortest track the scrobble provider accepts.
const minDuration = 20000 * time.Millisecond

// Event describes the playback event a track is classified under.
type Event struct {
	Kind EventKind
	// Reason is the end reason for EventTrackEnd, unused otherwise.
	Reason string
	// Played is how long the track actually played before the event.
	Played time.Duration
}

// Skip reasons reported by Classify. They feed the skip metrics labels.
const (
	SkipEmpty   = "empty"
	SkipStream  = "stream"
	SkipSource  = "source"
	SkipReason  = "end_reason"
	SkipShort   = "too_short"
	SkipPartial = "partial_play"
	SkipNoAlbum = "no_album"
)

// SkipError reports that a track is simply not eligible for submission. It is
// a non-error outcome for the pipeline, distinguished from provider failures
// via errors.Is(err, ErrSkip).
type SkipError struct {
	Reason string
}

// ErrSkip is the sentinel matched by errors.Is for every SkipError.
var ErrSkip = errors.New("track not eligible")

func (e *SkipError) Error() string { return fmt.Sprintf("skip track: %s", e.Reason) }

// Is makes errors.Is(err, ErrSkip) match any SkipError.
func (e *SkipError) Is(target error) bool { return target == ErrSkip }

func skip(reason string) error { return &SkipError{Reason: reason} }

// Submission holds the provider-facing fields derived from an eligible track.
type Submission struct {
	Artist string
	Title  string
	Album  string
	// Duration is the track length in whole seconds, rounded down.
	Duration int64
	// TrackURI keys the per-user dedup marks for this submission.
	TrackURI string
	// Requester is the user that queued the track, used for the
	// chosen-by-user flag.
	Requester string
}

// Classify decides whether t qualifies for submission under ev and derives
// the artist, title and album fields the provider expects. An eligible track
// yields a Submission; an ineligible one yields a SkipError naming why.
//
// The 75% play threshold uses integer millisecond arithmetic and is
// inclusive: a track played exactly three quarters of its length scrobbles.
func Classify(t Track, ev Event) (Submission, error) {
	if t.URI == "" && t.Title == "" {
		return Submission{}, skip(SkipEmpty)
	}
	if t.Stream {
		return Submission{}, skip(SkipStream)
	}
	if t.Source == SourceLocal || t.Source == SourceHTTP {
		return Submission{}, skip(SkipSource)
	}

	if ev.Kind == EventTrackEnd {
		if ev.Reason != ReasonFinished {
			return Submission{}, skip(SkipReason)
		}
		if time.Duration(t.DurationMS)*time.Millisecond < minDuration {
			return Submission{}, skip(SkipShort)
		}
		if ev.Played.Milliseconds()*4 < t.DurationMS*3 {
			return Submission{}, skip(SkipPartial)
		}
	}

	var artist, title string

	switch t.Source {
	case SourceYouTube, SourceSoundCloud:
		// These sources carry no reliable tags; without at least an
		// album-equivalent field the metadata is too thin to submit.
		if t.AlbumName == "" {
			return Submission{}, skip(SkipNoAlbum)
		}
		if t.YouTubeID != "" {
			artist, title = splitYouTube(t)
		} else {
			artist, title = t.Author, t.SingleTitle
		}
		artist, _, _ = strings.Cut(artist, ",")
	default:
		artist, _, _ = strings.Cut(t.Author, ",")
		title = t.SingleTitle
	}

	album := t.AlbumName
	if album == "" && !t.Autoplay {
		switch t.Source {
		case SourceSpotify, SourceDeezer, SourceAppleMusic, SourceTidal:
			// Singles from catalog sources often omit the album; the
			// bare song name is the closest equivalent.
			album = t.SingleTitle
		}
	}

	return Submission{
		Artist:    artist,
		Title:     title,
		Album:     album,
		Duration:  t.DurationMS / 1000,
		TrackURI:  t.URI,
		Requester: t.Requester,
	}, nil
}

const topicSuffix = " - topic"

// splitYouTube derives artist and song name from a YouTube upload. Auto
// generated "<artist> - Topic" channels name the artist directly; otherwise
// the conventional "Artist - Title" split of the video title applies, falling
// back to the uploader when the title carries no separator.
func splitYouTube(t Track) (artist, title string) {
	if n := len(t.Author) - len(topicSuffix); n > 0 && strings.EqualFold(t.Author[n:], topicSuffix) {
		trimmed := t.Author[:n]
		if !strings.HasSuffix(trimmed, "Release") && !strings.HasPrefix(t.Title, trimmed) {
			return trimmed, t.Title
		}
	}
	if a, rest, ok := strings.Cut(t.Title, " - "); ok {
		return a, rest
	}
	return t.Author, t.Title
}
