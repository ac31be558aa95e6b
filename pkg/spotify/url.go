package spotify

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	libspotify "github.com/zmb3/spotify"

	"Scrobble-Bridge-Go/pkg/track"
)

var (
	openURLRegex   = regexp.MustCompile(`https://open\.spotify\.com/?.+(album|playlist|artist|track)/([a-zA-Z0-9]+)`)
	shortLinkRegex = regexp.MustCompile(`(?i)https?://spotify\.link/?([a-zA-Z0-9]+)`)
)

// Link identifies a piece of catalog content referenced by an
// open.spotify.com URL.
type Link struct {
	Kind string // album, playlist, artist or track
	ID   string
}

// ParseURL extracts the content reference from an open.spotify.com URL.
func ParseURL(query string) (Link, bool) {
	m := openURLRegex.FindStringSubmatch(query)
	if m == nil {
		return Link{}, false
	}
	return Link{Kind: m[1], ID: m[2]}, true
}

// IsShortLink reports whether query is a spotify.link short URL that needs
// resolving before it can be parsed.
func IsShortLink(query string) bool {
	return shortLinkRegex.MatchString(query)
}

// ResolveShortLink follows one redirect of a spotify.link URL and returns
// the open.spotify.com target.
func (c *Client) ResolveShortLink(ctx context.Context, shortURL string) (string, error) {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if c.HTTPClient != nil {
		cp := *c.HTTPClient
		cp.CheckRedirect = client.CheckRedirect
		client = &cp
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", errors.New("spotify: short link did not redirect")
	}
	return loc, nil
}

// TrackFromFull converts a provider track record into the playback-node
// track model used by the pipeline. The album is recorded only when it names
// something other than the track itself, matching how singles are reported.
func TrackFromFull(t *libspotify.FullTrack, requester string, autoplay bool) track.Track {
	author := "Unknown Artist"
	if len(t.Artists) > 0 && t.Artists[0].Name != "" {
		author = t.Artists[0].Name
	}
	album := t.Album.Name
	if album == t.Name {
		album = ""
	}
	return track.Track{
		URI:         t.ExternalURLs["spotify"],
		Title:       t.Name,
		SingleTitle: t.Name,
		Author:      author,
		AlbumName:   album,
		DurationMS:  int64(t.Duration),
		Source:      track.SourceSpotify,
		Requester:   requester,
		Autoplay:    autoplay,
	}
}

// TracksFromAlbum converts an album's track listing. The album name comes
// from the parent record since album tracks only carry a back reference.
func TracksFromAlbum(a *libspotify.FullAlbum, requester string) []track.Track {
	out := make([]track.Track, 0, len(a.Tracks.Tracks))
	for _, t := range a.Tracks.Tracks {
		out = append(out, trackFromSimple(t, a.Name, requester))
	}
	return out
}

// TracksFromPlaylist converts a playlist's track listing.
func TracksFromPlaylist(p *libspotify.FullPlaylist, requester string) []track.Track {
	out := make([]track.Track, 0, len(p.Tracks.Tracks))
	for _, pt := range p.Tracks.Tracks {
		ft := pt.Track
		out = append(out, TrackFromFull(&ft, requester, false))
	}
	return out
}

func trackFromSimple(t libspotify.SimpleTrack, album, requester string) track.Track {
	author := "Unknown Artist"
	if len(t.Artists) > 0 && t.Artists[0].Name != "" {
		author = t.Artists[0].Name
	}
	if album == t.Name {
		album = ""
	}
	return track.Track{
		URI:         t.ExternalURLs["spotify"],
		Title:       t.Name,
		SingleTitle: t.Name,
		Author:      author,
		AlbumName:   album,
		DurationMS:  int64(t.Duration),
		Source:      track.SourceSpotify,
		Requester:   requester,
	}
}
