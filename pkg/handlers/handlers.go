// Package handlers contains the HTTP surface of the bridge: the account-link
// flow, the per-user settings toggle, the link status page data and the
// operational endpoints. Handlers are methods on Application so tests can
// construct one with fake services.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/deezer"
	"Scrobble-Bridge-Go/pkg/lastfm"
	"Scrobble-Bridge-Go/pkg/session"
)

// AccountService is the subset of the Last.fm client the handlers call.
type AccountService interface {
	GetToken(ctx context.Context) (string, error)
	AuthURL(token string) string
	GetSession(ctx context.Context, token string) (lastfm.SessionInfo, error)
	UserInfo(ctx context.Context, sessionKey string) (lastfm.UserInfo, error)
	UserTopTracks(ctx context.Context, user string, limit int) ([]lastfm.TopTrack, error)
	UserTopArtists(ctx context.Context, user string, limit int) ([]lastfm.TopArtist, error)
	UserTopAlbums(ctx context.Context, user string, limit int) ([]lastfm.TopAlbum, error)
	UserRecentTracks(ctx context.Context, user string, limit int) ([]lastfm.RecentTrack, error)
}

var _ AccountService = (*lastfm.Client)(nil)

// ArtworkService resolves replacement artwork when the scrobble provider
// only has its placeholder image.
type ArtworkService interface {
	Search(ctx context.Context, q deezer.Query) ([]deezer.Result, error)
}

var _ ArtworkService = (*deezer.Client)(nil)

// Defaults for the link-approval poll when the Application leaves them zero.
const (
	DefaultLinkPollAttempts = 15
	DefaultLinkPollInterval = 20 * time.Second
)

// Application bundles the dependencies of the HTTP handlers.
type Application struct {
	Accounts AccountService
	Artwork  ArtworkService
	Catalog  CatalogService
	Store    session.Store
	Sessions *session.Cache
	Log      logrus.FieldLogger
	Registry *prometheus.Registry

	// Ready is consulted by the health endpoint when set.
	Ready func(ctx context.Context) error

	LinkPollAttempts int
	LinkPollInterval time.Duration
}

// Routes returns the handler serving all endpoints.
func (app *Application) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/link", app.LinkStart)
	mux.HandleFunc("/link/complete", app.LinkComplete)
	mux.HandleFunc("/unlink", app.Unlink)
	mux.HandleFunc("/settings", app.Settings)
	mux.HandleFunc("/status", app.Status)
	mux.HandleFunc("/resolve", app.Resolve)
	mux.HandleFunc("/healthz", app.Healthz)
	if app.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Healthz reports process liveness. When a readiness probe is configured its
// failure turns the response into a 503 so orchestrators stop routing here.
func (app *Application) Healthz(w http.ResponseWriter, r *http.Request) {
	if app.Ready != nil {
		if err := app.Ready(r.Context()); err != nil {
			respondJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *Application) pollAttempts() int {
	if app.LinkPollAttempts > 0 {
		return app.LinkPollAttempts
	}
	return DefaultLinkPollAttempts
}

func (app *Application) pollInterval() time.Duration {
	if app.LinkPollInterval > 0 {
		return app.LinkPollInterval
	}
	return DefaultLinkPollInterval
}
