// Status endpoint: profile summary plus listening charts for a linked user.

package handlers

import (
	"context"
	"net/http"
	"strings"

	"Scrobble-Bridge-Go/pkg/deezer"
	"Scrobble-Bridge-Go/pkg/lastfm"
)

const (
	chartLimit  = 10
	recentLimit = 5

	// Last.fm serves this image when it has no artwork for a record.
	placeholderArtSuffix = "2a96cbd8b46e442fc41c2b86b821562f.png"
)

type statusUser struct {
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	URL            string `json:"url"`
	PlayCount      string `json:"play_count"`
	RegisteredUnix int64  `json:"registered_unix"`
	Image          string `json:"image,omitempty"`
}

type chartEntry struct {
	Name      string `json:"name"`
	Artist    string `json:"artist,omitempty"`
	URL       string `json:"url"`
	PlayCount string `json:"play_count"`
	Image     string `json:"image,omitempty"`
}

type recentEntry struct {
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	NowPlaying bool   `json:"now_playing"`
	Image      string `json:"image,omitempty"`
}

type statusResponse struct {
	User            statusUser    `json:"user"`
	ScrobbleEnabled bool          `json:"scrobble_enabled"`
	TopTracks       []chartEntry  `json:"top_tracks"`
	TopArtists      []chartEntry  `json:"top_artists"`
	TopAlbums       []chartEntry  `json:"top_albums"`
	Recent          []recentEntry `json:"recent_tracks"`
}

// Status returns the profile and chart data shown for a linked account. A
// revoked session key discovered here unlinks the user locally.
func (app *Application) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	s, err := app.Sessions.Lookup(ctx, userID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !s.Linked() {
		respondJSONError(w, http.StatusNotFound, "account is not linked")
		return
	}

	info, err := app.Accounts.UserInfo(ctx, s.SessionKey)
	if err != nil {
		if lastfm.IsInvalidSession(err) {
			if err := app.Store.ClearSessionKey(ctx, userID); err != nil {
				app.Log.WithError(err).WithField("user_id", userID).Error("unlink after revoked session failed")
			}
			app.Sessions.Forget(userID)
			respondJSONError(w, http.StatusNotFound, "link was revoked, relink required")
			return
		}
		app.Log.WithError(err).Error("profile fetch failed")
		respondJSONError(w, http.StatusBadGateway, "scrobble service unavailable")
		return
	}

	resp := statusResponse{
		User: statusUser{
			Name:           info.Name,
			DisplayName:    info.DisplayName(),
			URL:            info.URL,
			PlayCount:      info.PlayCount,
			RegisteredUnix: info.Registered.UnixTime,
			Image:          bestImage(info.Images),
		},
		ScrobbleEnabled: s.ScrobbleEnabled,
	}

	if tracks, err := app.Accounts.UserTopTracks(ctx, info.Name, chartLimit); err != nil {
		app.Log.WithError(err).Warn("top tracks fetch failed")
	} else {
		for _, t := range tracks {
			resp.TopTracks = append(resp.TopTracks, chartEntry{
				Name:      t.Name,
				Artist:    t.Artist.Name,
				URL:       t.URL,
				PlayCount: t.PlayCount,
				Image:     bestImage(t.Images),
			})
		}
	}

	if artists, err := app.Accounts.UserTopArtists(ctx, info.Name, chartLimit); err != nil {
		app.Log.WithError(err).Warn("top artists fetch failed")
	} else {
		for _, a := range artists {
			resp.TopArtists = append(resp.TopArtists, chartEntry{
				Name:      a.Name,
				URL:       a.URL,
				PlayCount: a.PlayCount,
				Image:     bestImage(a.Images),
			})
		}
	}

	if albums, err := app.Accounts.UserTopAlbums(ctx, info.Name, chartLimit); err != nil {
		app.Log.WithError(err).Warn("top albums fetch failed")
	} else {
		for _, a := range albums {
			resp.TopAlbums = append(resp.TopAlbums, chartEntry{
				Name:      a.Name,
				Artist:    a.Artist.Name,
				URL:       a.URL,
				PlayCount: a.PlayCount,
				Image:     bestImage(a.Images),
			})
		}
	}

	if recents, err := app.Accounts.UserRecentTracks(ctx, info.Name, recentLimit); err != nil {
		app.Log.WithError(err).Warn("recent tracks fetch failed")
	} else {
		for _, t := range recents {
			resp.Recent = append(resp.Recent, recentEntry{
				Name:       t.Name,
				Artist:     t.Artist.Name,
				Album:      t.Album.Name,
				NowPlaying: t.NowListening(),
				Image:      bestImage(t.Images),
			})
		}
	}

	// Artwork lookups are limited to the entries the status card features.
	if len(resp.TopArtists) > 0 && placeholderArt(resp.TopArtists[0].Image) {
		resp.TopArtists[0].Image = app.artistArt(ctx, resp.TopArtists[0].Name)
	}
	if len(resp.TopAlbums) > 0 && placeholderArt(resp.TopAlbums[0].Image) {
		resp.TopAlbums[0].Image = app.albumArt(ctx, resp.TopAlbums[0].Artist, resp.TopAlbums[0].Name)
	}
	if len(resp.Recent) > 0 && placeholderArt(resp.Recent[0].Image) {
		resp.Recent[0].Image = app.albumArt(ctx, resp.Recent[0].Artist, resp.Recent[0].Album)
	}

	respondJSON(w, http.StatusOK, resp)
}

// bestImage picks the largest image with a URL; Last.fm orders sizes
// ascending.
func bestImage(images []lastfm.Image) string {
	for i := len(images) - 1; i >= 0; i-- {
		if images[i].URL != "" {
			return images[i].URL
		}
	}
	return ""
}

func placeholderArt(url string) bool {
	return url == "" || strings.HasSuffix(url, placeholderArtSuffix)
}

func (app *Application) artistArt(ctx context.Context, artist string) string {
	if app.Artwork == nil || artist == "" {
		return ""
	}
	res, err := app.Artwork.Search(ctx, deezer.Query{Artist: artist})
	if err != nil {
		app.Log.WithError(err).Debug("artist artwork lookup failed")
		return ""
	}
	return deezer.ArtistPicture(res, artist)
}

func (app *Application) albumArt(ctx context.Context, artist, album string) string {
	if app.Artwork == nil || album == "" {
		return ""
	}
	res, err := app.Artwork.Search(ctx, deezer.Query{Artist: artist, Album: album})
	if err != nil {
		app.Log.WithError(err).Debug("album artwork lookup failed")
		return ""
	}
	return deezer.AlbumCover(res, album)
}
