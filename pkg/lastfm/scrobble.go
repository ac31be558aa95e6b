package lastfm

import (
	"context"
	"strconv"
	"time"
)

// NowPlaying is the payload for a track.updateNowPlaying call.
type NowPlaying struct {
	Artist     string
	Track      string
	Album      string
	Duration   int64 // seconds
	SessionKey string
}

// UpdateNowPlaying tells the provider what the listener is hearing right now.
// It does not count as a scrobble.
func (c *Client) UpdateNowPlaying(ctx context.Context, np NowPlaying) error {
	params := map[string]string{
		"method": "track.updateNowPlaying",
		"artist": np.Artist,
		"track":  np.Track,
		"sk":     np.SessionKey,
	}
	if np.Album != "" {
		params["album"] = np.Album
	}
	if np.Duration > 0 {
		params["duration"] = strconv.FormatInt(np.Duration, 10)
	}
	return c.signedPost(ctx, params, nil)
}

// Scrobble is the payload for a track.scrobble call.
type Scrobble struct {
	Artist     string
	Track      string
	Album      string
	Duration   int64 // seconds
	SessionKey string
	// Timestamp is when the track started playing. The zero value is
	// replaced with now minus the track duration.
	Timestamp time.Time
	// ChosenByListener is false when someone other than the listener queued
	// the track; the provider then records it as not user-chosen.
	ChosenByListener bool
}

// SubmitScrobble logs a finished track to the listener's profile.
func (c *Client) SubmitScrobble(ctx context.Context, s Scrobble) error {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now().Add(-time.Duration(s.Duration) * time.Second)
	}
	params := map[string]string{
		"method":    "track.scrobble",
		"artist":    s.Artist,
		"track":     s.Track,
		"timestamp": strconv.FormatInt(ts.Unix(), 10),
		"sk":        s.SessionKey,
	}
	if s.Album != "" {
		params["album"] = s.Album
	}
	if s.Duration > 0 {
		params["duration"] = strconv.FormatInt(s.Duration, 10)
	}
	if !s.ChosenByListener {
		params["chosenByUser"] = "0"
	}
	return c.signedPost(ctx, params, nil)
}
