package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	libspotify "github.com/zmb3/spotify"

	"Scrobble-Bridge-Go/pkg/deezer"
	"Scrobble-Bridge-Go/pkg/lastfm"
	"Scrobble-Bridge-Go/pkg/session"
	"Scrobble-Bridge-Go/pkg/spotify"
)

// fakeAccounts is an in-memory AccountService.
type fakeAccounts struct {
	token    string
	tokenErr error

	// approveAfter makes GetSession answer token-unauthorized for the first
	// n calls, mimicking a user who has not clicked approve yet.
	approveAfter int
	sessionCalls int
	session      lastfm.SessionInfo
	sessionErr   error

	info    lastfm.UserInfo
	infoErr error

	topTracks  []lastfm.TopTrack
	topArtists []lastfm.TopArtist
	topAlbums  []lastfm.TopAlbum
	recents    []lastfm.RecentTrack
}

func (f *fakeAccounts) GetToken(context.Context) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeAccounts) AuthURL(token string) string {
	return "https://auth.example/?token=" + token
}

func (f *fakeAccounts) GetSession(context.Context, string) (lastfm.SessionInfo, error) {
	f.sessionCalls++
	if f.sessionCalls <= f.approveAfter {
		return lastfm.SessionInfo{}, &lastfm.APIError{Code: lastfm.CodeTokenUnauthorized, Message: "unauthorized token"}
	}
	return f.session, f.sessionErr
}

func (f *fakeAccounts) UserInfo(context.Context, string) (lastfm.UserInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeAccounts) UserTopTracks(context.Context, string, int) ([]lastfm.TopTrack, error) {
	return f.topTracks, nil
}

func (f *fakeAccounts) UserTopArtists(context.Context, string, int) ([]lastfm.TopArtist, error) {
	return f.topArtists, nil
}

func (f *fakeAccounts) UserTopAlbums(context.Context, string, int) ([]lastfm.TopAlbum, error) {
	return f.topAlbums, nil
}

func (f *fakeAccounts) UserRecentTracks(context.Context, string, int) ([]lastfm.RecentTrack, error) {
	return f.recents, nil
}

// fakeStore is an in-memory session.Store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	cleared  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]session.Session)}
}

func (f *fakeStore) GetSession(_ context.Context, userID string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[userID]; ok {
		return s, nil
	}
	return session.Session{UserID: userID, ScrobbleEnabled: true}, nil
}

func (f *fakeStore) SetSession(_ context.Context, s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.UserID] = s
	return nil
}

func (f *fakeStore) ClearSessionKey(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	s := f.sessions[userID]
	s.SessionKey = ""
	f.sessions[userID] = s
	return nil
}

type fakeArtwork struct {
	queries []deezer.Query
	results []deezer.Result
}

func (f *fakeArtwork) Search(_ context.Context, q deezer.Query) ([]deezer.Result, error) {
	f.queries = append(f.queries, q)
	return f.results, nil
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestApp(accounts *fakeAccounts, store *fakeStore) *Application {
	return &Application{
		Accounts:         accounts,
		Store:            store,
		Sessions:         session.NewCache(store),
		Log:              testLogger(),
		LinkPollAttempts: 3,
		LinkPollInterval: time.Millisecond,
	}
}

func do(t *testing.T, app *Application, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	app.Routes().ServeHTTP(rec, req)
	return rec
}

func TestLinkStartReturnsAuthURL(t *testing.T) {
	accounts := &fakeAccounts{token: "tok123"}
	app := newTestApp(accounts, newFakeStore())

	rec := do(t, app, http.MethodPost, "/link", `{"user_id":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Token                string `json:"token"`
		AuthURL              string `json:"auth_url"`
		ApproveWithinSeconds int    `json:"approve_within_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token != "tok123" || resp.AuthURL != "https://auth.example/?token=tok123" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestLinkStartRequiresUserID(t *testing.T) {
	app := newTestApp(&fakeAccounts{token: "t"}, newFakeStore())
	if rec := do(t, app, http.MethodPost, "/link", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLinkCompleteStoresSessionAfterApproval(t *testing.T) {
	accounts := &fakeAccounts{
		approveAfter: 2,
		session:      lastfm.SessionInfo{Name: "listener", Key: "sk1"},
	}
	store := newFakeStore()
	app := newTestApp(accounts, store)

	rec := do(t, app, http.MethodGet, "/link/complete?user_id=u1&token=tok", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if accounts.sessionCalls != 3 {
		t.Errorf("GetSession called %d times", accounts.sessionCalls)
	}
	s, _ := store.GetSession(context.Background(), "u1")
	if s.SessionKey != "sk1" || s.Username != "listener" || !s.ScrobbleEnabled {
		t.Errorf("stored session = %+v", s)
	}
	cached, err := app.Sessions.Lookup(context.Background(), "u1")
	if err != nil || !cached.Linked() {
		t.Errorf("cache not warmed: %+v, %v", cached, err)
	}
}

func TestLinkCompleteTimesOutWithoutApproval(t *testing.T) {
	accounts := &fakeAccounts{approveAfter: 100}
	app := newTestApp(accounts, newFakeStore())

	rec := do(t, app, http.MethodGet, "/link/complete?user_id=u1&token=tok", "")
	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
	if accounts.sessionCalls != app.LinkPollAttempts {
		t.Errorf("GetSession called %d times", accounts.sessionCalls)
	}
}

func TestLinkCompleteProviderFailure(t *testing.T) {
	accounts := &fakeAccounts{sessionErr: &lastfm.APIError{Code: 11, Message: "service offline"}}
	app := newTestApp(accounts, newFakeStore())

	if rec := do(t, app, http.MethodGet, "/link/complete?user_id=u1&token=tok", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUnlinkClearsSessionKey(t *testing.T) {
	store := newFakeStore()
	store.sessions["u1"] = session.Session{UserID: "u1", SessionKey: "sk", Username: "listener", ScrobbleEnabled: true}
	app := newTestApp(&fakeAccounts{}, store)

	rec := do(t, app, http.MethodPost, "/unlink", `{"user_id":"u1"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(store.cleared) != 1 || store.cleared[0] != "u1" {
		t.Errorf("cleared = %v", store.cleared)
	}
	s, _ := app.Sessions.Lookup(context.Background(), "u1")
	if s.Linked() {
		t.Error("cache still holds linked session")
	}
}

func TestSettingsTogglePersists(t *testing.T) {
	store := newFakeStore()
	store.sessions["u1"] = session.Session{UserID: "u1", SessionKey: "sk", ScrobbleEnabled: true}
	app := newTestApp(&fakeAccounts{}, store)

	rec := do(t, app, http.MethodPost, "/settings", `{"user_id":"u1","scrobble_enabled":false}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	s, _ := store.GetSession(context.Background(), "u1")
	if s.ScrobbleEnabled {
		t.Error("toggle not persisted")
	}
	if s.SessionKey != "sk" {
		t.Error("toggle dropped the session key")
	}
	cached, _ := app.Sessions.Lookup(context.Background(), "u1")
	if cached.ScrobbleEnabled {
		t.Error("cache not updated")
	}
}

func TestStatusUnlinked(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	if rec := do(t, app, http.MethodGet, "/status?user_id=u1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStatusReturnsProfileAndCharts(t *testing.T) {
	accounts := &fakeAccounts{}
	accounts.info.Name = "listener"
	accounts.info.RealName = "The Listener"
	accounts.info.PlayCount = "4242"
	accounts.info.Registered.UnixTime = 1600000000

	var artist lastfm.TopArtist
	artist.Name = "Artist"
	artist.PlayCount = "100"
	artist.Images = []lastfm.Image{{URL: "https://img.example/" + placeholderArtSuffix, Size: "large"}}
	accounts.topArtists = []lastfm.TopArtist{artist}

	var recent lastfm.RecentTrack
	recent.Name = "Song"
	recent.Artist.Name = "Artist"
	recent.Album.Name = "Album"
	accounts.recents = []lastfm.RecentTrack{recent}

	store := newFakeStore()
	store.sessions["u1"] = session.Session{UserID: "u1", SessionKey: "sk", ScrobbleEnabled: true}
	app := newTestApp(accounts, store)

	var art deezer.Result
	art.Artist.Name = "Artist"
	art.Artist.PictureBig = "https://deezer.example/artist.jpg"
	art.Album.Title = "Album"
	art.Album.CoverBig = "https://deezer.example/album.jpg"
	artwork := &fakeArtwork{results: []deezer.Result{art}}
	app.Artwork = artwork

	rec := do(t, app, http.MethodGet, "/status?user_id=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.User.DisplayName != "The Listener" || resp.User.PlayCount != "4242" {
		t.Errorf("user = %+v", resp.User)
	}
	if !resp.ScrobbleEnabled {
		t.Error("scrobble_enabled lost")
	}
	if len(resp.TopArtists) != 1 || resp.TopArtists[0].Image != "https://deezer.example/artist.jpg" {
		t.Errorf("placeholder artwork not replaced: %+v", resp.TopArtists)
	}
	if len(resp.Recent) != 1 || !resp.Recent[0].NowPlaying {
		t.Errorf("recent = %+v", resp.Recent)
	}
	if resp.Recent[0].Image != "https://deezer.example/album.jpg" {
		t.Errorf("recent artwork = %q", resp.Recent[0].Image)
	}
}

func TestStatusRevokedSessionUnlinksLocally(t *testing.T) {
	accounts := &fakeAccounts{infoErr: &lastfm.APIError{Code: lastfm.CodeInvalidSession, Message: "invalid session key"}}
	store := newFakeStore()
	store.sessions["u1"] = session.Session{UserID: "u1", SessionKey: "sk", ScrobbleEnabled: true}
	app := newTestApp(accounts, store)

	rec := do(t, app, http.MethodGet, "/status?user_id=u1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(store.cleared) != 1 || store.cleared[0] != "u1" {
		t.Errorf("cleared = %v", store.cleared)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	if rec := do(t, app, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	app.Ready = func(context.Context) error { return io.ErrUnexpectedEOF }
	if rec := do(t, app, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with failing probe = %d", rec.Code)
	}
}

// fakeCatalog is an in-memory CatalogService serving a single track.
type fakeCatalog struct {
	short      map[string]string
	track      *libspotify.FullTrack
	err        error
	shortCalls int
}

func (f *fakeCatalog) ResolveShortLink(_ context.Context, shortURL string) (string, error) {
	f.shortCalls++
	if full, ok := f.short[shortURL]; ok {
		return full, nil
	}
	return "", io.ErrUnexpectedEOF
}

func (f *fakeCatalog) GetTrack(context.Context, string) (*libspotify.FullTrack, error) {
	return f.track, f.err
}

func (f *fakeCatalog) GetAlbum(context.Context, string) (*libspotify.FullAlbum, error) {
	return nil, f.err
}

func (f *fakeCatalog) GetArtistTop(context.Context, string) ([]libspotify.FullTrack, error) {
	return nil, f.err
}

func (f *fakeCatalog) GetPlaylist(context.Context, string) (*libspotify.FullPlaylist, error) {
	return nil, f.err
}

func catalogTrack() *libspotify.FullTrack {
	t := &libspotify.FullTrack{}
	t.Name = "Song"
	t.Artists = []libspotify.SimpleArtist{{Name: "Artist"}}
	t.Duration = 200000
	t.ExternalURLs = map[string]string{"spotify": "https://open.spotify.com/track/abc"}
	t.Album.Name = "Album"
	return t
}

func TestResolveTrack(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	app.Catalog = &fakeCatalog{track: catalogTrack()}

	rec := do(t, app, http.MethodGet, "/resolve?url=https://open.spotify.com/track/abc&requester=u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Kind   string          `json:"kind"`
		Tracks []resolvedTrack `json:"tracks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Kind != "track" || len(resp.Tracks) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	got := resp.Tracks[0]
	if got.Title != "Song" || got.Artist != "Artist" || got.Album != "Album" || got.DurationMS != 200000 {
		t.Errorf("track = %+v", got)
	}
}

func TestResolveFollowsShortLink(t *testing.T) {
	catalog := &fakeCatalog{
		short: map[string]string{"https://spotify.link/xyz": "https://open.spotify.com/track/abc"},
		track: catalogTrack(),
	}
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	app.Catalog = catalog

	rec := do(t, app, http.MethodGet, "/resolve?url=https://spotify.link/xyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if catalog.shortCalls != 1 {
		t.Errorf("short link resolved %d times", catalog.shortCalls)
	}
}

func TestResolveUnsupportedLink(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	app.Catalog = &fakeCatalog{}
	if rec := do(t, app, http.MethodGet, "/resolve?url=https://example.com/song", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestResolveCatalogDisabled(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	app.Catalog = &fakeCatalog{err: spotify.ErrDisabled}
	if rec := do(t, app, http.MethodGet, "/resolve?url=https://open.spotify.com/track/abc", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestResolveNotFound(t *testing.T) {
	app := newTestApp(&fakeAccounts{}, newFakeStore())
	app.Catalog = &fakeCatalog{err: &spotify.NotFoundError{Link: "https://open.spotify.com/track/abc"}}
	if rec := do(t, app, http.MethodGet, "/resolve?url=https://open.spotify.com/track/abc", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}
