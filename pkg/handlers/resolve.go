// Resolve endpoint: turns a Spotify link into track metadata.

package handlers

import (
	"context"
	"errors"
	"net/http"

	libspotify "github.com/zmb3/spotify"

	"Scrobble-Bridge-Go/pkg/spotify"
	"Scrobble-Bridge-Go/pkg/track"
)

// CatalogService is the subset of the Spotify client the resolve endpoint
// calls.
type CatalogService interface {
	ResolveShortLink(ctx context.Context, shortURL string) (string, error)
	GetTrack(ctx context.Context, id string) (*libspotify.FullTrack, error)
	GetAlbum(ctx context.Context, id string) (*libspotify.FullAlbum, error)
	GetArtistTop(ctx context.Context, id string) ([]libspotify.FullTrack, error)
	GetPlaylist(ctx context.Context, id string) (*libspotify.FullPlaylist, error)
}

var _ CatalogService = (*spotify.Client)(nil)

type resolvedTrack struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	URI        string `json:"uri"`
}

// Resolve expands an open.spotify.com or spotify.link URL into the tracks it
// references.
func (app *Application) Resolve(w http.ResponseWriter, r *http.Request) {
	if app.Catalog == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "catalog lookups not configured")
		return
	}
	ctx := r.Context()
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		respondJSONError(w, http.StatusBadRequest, "url is required")
		return
	}
	requester := r.URL.Query().Get("requester")

	if spotify.IsShortLink(rawURL) {
		resolved, err := app.Catalog.ResolveShortLink(ctx, rawURL)
		if err != nil {
			app.Log.WithError(err).Warn("short link resolution failed")
			respondJSONError(w, http.StatusBadGateway, "failed to resolve short link")
			return
		}
		rawURL = resolved
	}

	link, ok := spotify.ParseURL(rawURL)
	if !ok {
		respondJSONError(w, http.StatusBadRequest, "unsupported link")
		return
	}

	var tracks []track.Track
	var err error
	switch link.Kind {
	case "track":
		var t *libspotify.FullTrack
		if t, err = app.Catalog.GetTrack(ctx, link.ID); err == nil {
			tracks = []track.Track{spotify.TrackFromFull(t, requester, false)}
		}
	case "album":
		var a *libspotify.FullAlbum
		if a, err = app.Catalog.GetAlbum(ctx, link.ID); err == nil {
			tracks = spotify.TracksFromAlbum(a, requester)
		}
	case "artist":
		var top []libspotify.FullTrack
		if top, err = app.Catalog.GetArtistTop(ctx, link.ID); err == nil {
			for i := range top {
				tracks = append(tracks, spotify.TrackFromFull(&top[i], requester, false))
			}
		}
	case "playlist":
		var p *libspotify.FullPlaylist
		if p, err = app.Catalog.GetPlaylist(ctx, link.ID); err == nil {
			tracks = spotify.TracksFromPlaylist(p, requester)
		}
	}
	if err != nil {
		var nf *spotify.NotFoundError
		switch {
		case errors.Is(err, spotify.ErrDisabled):
			respondJSONError(w, http.StatusServiceUnavailable, "catalog lookups are disabled")
		case errors.As(err, &nf):
			respondJSONError(w, http.StatusNotFound, "no content at "+nf.Link)
		default:
			app.Log.WithError(err).Error("catalog lookup failed")
			respondJSONError(w, http.StatusBadGateway, "catalog service unavailable")
		}
		return
	}

	out := make([]resolvedTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, resolvedTrack{
			Title:      t.Title,
			Artist:     t.Author,
			Album:      t.AlbumName,
			DurationMS: t.DurationMS,
			URI:        t.URI,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"kind": link.Kind, "tracks": out})
}
