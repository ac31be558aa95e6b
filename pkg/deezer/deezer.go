// Package deezer implements the small slice of the Deezer search API used to
// find replacement artwork when the scrobble provider only has its
// placeholder image. No authentication is required.
//
// Network calls are performed using the provided http.Client allowing
// callers to substitute a test client.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the production search endpoint.
const DefaultBaseURL = "https://api.deezer.com/search"

// Client provides access to the Deezer search API.
type Client struct {
	BaseURL string
	Client  *http.Client
}

// Query is a field-qualified search. Empty fields are omitted.
type Query struct {
	Artist string
	Track  string
	Album  string
}

func (q Query) encode() string {
	var parts []string
	add := func(field, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s:%q", field, value))
		}
	}
	add("artist", q.Artist)
	add("track", q.Track)
	add("album", q.Album)
	return strings.Join(parts, " ")
}

// Result is one search hit carrying the artwork URLs callers pick from.
type Result struct {
	Title  string `json:"title"`
	Artist struct {
		Name       string `json:"name"`
		PictureBig string `json:"picture_big"`
	} `json:"artist"`
	Album struct {
		Title    string `json:"title"`
		CoverBig string `json:"cover_big"`
	} `json:"album"`
}

// Search runs a strict field-qualified search. An empty query returns no
// results without a network call.
func (c *Client) Search(ctx context.Context, q Query) ([]Result, error) {
	query := q.encode()
	if query == "" {
		return nil, nil
	}
	hc := c.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	params := url.Values{
		"q":      {query},
		"strict": {"on"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deezer search error: %s", resp.Status)
	}
	var body struct {
		Data []Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// AlbumCover returns the cover of the first result matching album, or the
// first result's cover when no exact match exists.
func AlbumCover(results []Result, album string) string {
	for _, r := range results {
		if album != "" && !strings.EqualFold(r.Album.Title, album) {
			continue
		}
		if r.Album.CoverBig != "" {
			return r.Album.CoverBig
		}
	}
	return ""
}

// ArtistPicture returns the picture of the first result whose artist name
// matches name case-insensitively.
func ArtistPicture(results []Result, name string) string {
	for _, r := range results {
		if strings.EqualFold(r.Artist.Name, name) && r.Artist.PictureBig != "" {
			return r.Artist.PictureBig
		}
	}
	return ""
}
