package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	libspotify "github.com/zmb3/spotify"
)

// DefaultBaseURL is the production Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// ErrDisabled is returned once the provider rate limited the client; the
// client stays disabled for the rest of the process lifetime and performs no
// further network calls.
var ErrDisabled = errors.New("spotify support disabled")

// NotFoundError is returned for lookups of missing or private content. Link
// is a user-presentable open.spotify.com address derived from the failing
// API URL.
type NotFoundError struct {
	Link string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("spotify: no result for %s", e.Link)
}

// Client performs token-gated lookups against the Web API, decoding
// responses into the zmb3/spotify model types the rest of the application
// uses.
type Client struct {
	Tokens *TokenCache
	// BaseURL overrides the API root in tests.
	BaseURL string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Log        logrus.FieldLogger

	disabled atomic.Bool
}

// NewClient wires a client to tokens.
func NewClient(tokens *TokenCache, log logrus.FieldLogger) *Client {
	return &Client{Tokens: tokens, Log: log}
}

// Disabled reports whether the client was shut off by a rate limit.
func (c *Client) Disabled() bool { return c.disabled.Load() }

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// get performs one API request. A 401 forces a token refresh and a single
// retry; a 404 surfaces as NotFoundError; a 429 permanently disables the
// client.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.getRetry(ctx, path, params, out, true)
}

func (c *Client) getRetry(ctx context.Context, path string, params url.Values, out interface{}, retryAuth bool) error {
	if c.disabled.Load() {
		return ErrDisabled
	}
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL() + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusUnauthorized:
		if !retryAuth {
			return fmt.Errorf("spotify: %s", resp.Status)
		}
		c.Tokens.Invalidate()
		return c.getRetry(ctx, path, params, out, false)
	case http.StatusNotFound:
		return &NotFoundError{Link: publicLink(u)}
	case http.StatusTooManyRequests:
		c.disabled.Store(true)
		c.Log.Warn("spotify rate limited, disabling client for this process")
		return ErrDisabled
	default:
		return fmt.Errorf("spotify: %s", resp.Status)
	}
}

// publicLink rewrites a failing API URL into the address a user would open
// in a browser: tracks/x on api.spotify.com/v1 becomes track/x on
// open.spotify.com.
func publicLink(apiURL string) string {
	s := strings.ReplaceAll(apiURL, "api.", "open.")
	s = strings.ReplaceAll(s, "/v1/", "/")
	return strings.ReplaceAll(s, "s/", "/")
}

// GetTrack fetches a single track by ID.
func (c *Client) GetTrack(ctx context.Context, id string) (*libspotify.FullTrack, error) {
	var t libspotify.FullTrack
	if err := c.get(ctx, "tracks/"+id, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetAlbum fetches an album including its track listing.
func (c *Client) GetAlbum(ctx context.Context, id string) (*libspotify.FullAlbum, error) {
	var a libspotify.FullAlbum
	if err := c.get(ctx, "albums/"+id, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetArtistTop fetches an artist's most played tracks.
func (c *Client) GetArtistTop(ctx context.Context, id string) ([]libspotify.FullTrack, error) {
	var out struct {
		Tracks []libspotify.FullTrack `json:"tracks"`
	}
	if err := c.get(ctx, "artists/"+id+"/top-tracks", url.Values{"market": {"US"}}, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

// GetPlaylist fetches a playlist including its first page of tracks.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*libspotify.FullPlaylist, error) {
	var p libspotify.FullPlaylist
	if err := c.get(ctx, "playlists/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchTracks runs a track search and returns the first page of matches.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]libspotify.FullTrack, error) {
	params := url.Values{
		"q":     {query},
		"type":  {"track"},
		"limit": {fmt.Sprint(limit)},
	}
	var out struct {
		Tracks libspotify.FullTrackPage `json:"tracks"`
	}
	if err := c.get(ctx, "search", params, &out); err != nil {
		return nil, err
	}
	return out.Tracks.Tracks, nil
}

// Recommendations returns tracks related to the provided seed track IDs.
func (c *Client) Recommendations(ctx context.Context, seedTracks []string, limit int) ([]libspotify.SimpleTrack, error) {
	params := url.Values{
		"seed_tracks": {strings.Join(seedTracks, ",")},
		"limit":       {fmt.Sprint(limit)},
	}
	var out libspotify.Recommendations
	if err := c.get(ctx, "recommendations", params, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}
