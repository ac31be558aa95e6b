package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"
)

// newTestClient returns a client pointed at a server running handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{Key: "key", Secret: "secret", APIURL: srv.URL, HTTPClient: srv.Client()}
}

// expectSig recomputes the api_sig over the received form and compares.
func expectSig(t *testing.T, form url.Values, secret string) {
	t.Helper()
	keys := make([]string, 0, len(form))
	for k := range form {
		if k != "format" && k != "api_sig" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var concat string
	for _, k := range keys {
		concat += k + form.Get(k)
	}
	sum := md5.Sum([]byte(concat + secret))
	if got := form.Get("api_sig"); got != hex.EncodeToString(sum[:]) {
		t.Errorf("bad api_sig %q", got)
	}
}

func TestSubmitScrobbleSignsRequest(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"scrobbles":{}}`))
	})

	err := c.SubmitScrobble(context.Background(), Scrobble{
		Artist:           "Artist",
		Track:            "Song",
		Album:            "Album",
		Duration:         200,
		SessionKey:       "sk",
		ChosenByListener: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if form.Get("method") != "track.scrobble" || form.Get("sk") != "sk" {
		t.Fatalf("unexpected form: %v", form)
	}
	if form.Get("timestamp") == "" {
		t.Error("timestamp missing")
	}
	if _, ok := form["chosenByUser"]; ok {
		t.Error("chosenByUser must be omitted for the requester's own track")
	}
	expectSig(t, form, "secret")
}

func TestSubmitScrobbleChosenByOther(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"scrobbles":{}}`))
	})

	err := c.SubmitScrobble(context.Background(), Scrobble{
		Artist: "Artist", Track: "Song", Duration: 200, SessionKey: "sk",
	})
	if err != nil {
		t.Fatal(err)
	}
	if form.Get("chosenByUser") != "0" {
		t.Errorf("chosenByUser = %q, want 0", form.Get("chosenByUser"))
	}
}

func TestUpdateNowPlaying(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"nowplaying":{}}`))
	})

	err := c.UpdateNowPlaying(context.Background(), NowPlaying{
		Artist: "Artist", Track: "Song", Album: "Album", Duration: 200, SessionKey: "sk",
	})
	if err != nil {
		t.Fatal(err)
	}
	if form.Get("method") != "track.updateNowPlaying" {
		t.Fatalf("unexpected method %q", form.Get("method"))
	}
	if form.Get("duration") != "200" {
		t.Errorf("duration = %q", form.Get("duration"))
	}
	expectSig(t, form, "secret")
}

func TestAPIErrorCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":9,"message":"Invalid session key"}`))
	})

	err := c.SubmitScrobble(context.Background(), Scrobble{Artist: "a", Track: "t", SessionKey: "dead"})
	if !IsInvalidSession(err) {
		t.Fatalf("expected invalid-session error, got %v", err)
	}
}

func TestGetSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("method") != "auth.getSession" || r.PostForm.Get("token") != "tok" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Write([]byte(`{"session":{"name":"listener","key":"sk","subscriber":0}}`))
	})

	s, err := c.GetSession(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if s.Key != "sk" || s.Name != "listener" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestGetSessionNotApprovedYet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":14,"message":"This token has not been authorized"}`))
	})

	_, err := c.GetSession(context.Background(), "tok")
	var api *APIError
	if !errors.As(err, &api) || api.Code != 14 {
		t.Fatalf("expected code 14, got %v", err)
	}
}

func TestUserInfoAndTops(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		var method string
		if r.Method == http.MethodPost {
			method = r.PostForm.Get("method")
		} else {
			method = r.URL.Query().Get("method")
		}
		switch method {
		case "user.getInfo":
			w.Write([]byte(`{"user":{"name":"listener","realname":"A Listener","url":"https://www.last.fm/user/listener","playcount":"123","registered":{"#text":1600000000}}}`))
		case "user.getTopTracks":
			w.Write([]byte(`{"toptracks":{"track":[{"name":"Song","url":"u","playcount":"7","artist":{"name":"Artist","url":"au"}}]}}`))
		case "user.getRecentTracks":
			w.Write([]byte(`{"recenttracks":{"track":[{"name":"Now","url":"u","artist":{"#text":"Artist"},"album":{"#text":""}},{"name":"Then","url":"u","artist":{"#text":"Artist"},"album":{"#text":"Album"},"date":{"uts":"1600000000"}}]}}`))
		default:
			t.Errorf("unexpected method %q", method)
		}
	})

	ctx := context.Background()

	info, err := c.UserInfo(ctx, "sk")
	if err != nil {
		t.Fatal(err)
	}
	if info.DisplayName() != "A Listener" || info.Registered.UnixTime != 1600000000 {
		t.Fatalf("unexpected info: %+v", info)
	}

	tops, err := c.UserTopTracks(ctx, "listener", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tops) != 1 || tops[0].Artist.Name != "Artist" {
		t.Fatalf("unexpected top tracks: %+v", tops)
	}

	recent, err := c.UserRecentTracks(ctx, "listener", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || !recent[0].NowListening() || recent[1].NowListening() {
		t.Fatalf("unexpected recent tracks: %+v", recent)
	}
}
