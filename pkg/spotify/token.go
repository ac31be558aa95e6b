// Package spotify provides the metadata-provider client used to resolve
// track, album, artist and playlist records. Authentication uses the client
// credentials flow when application credentials are configured and falls back
// to the anonymous visitor token otherwise. The current token is cached in
// memory and mirrored to a small JSON file so a restart can reuse an
// unexpired token.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2/clientcredentials"

	"Scrobble-Bridge-Go/pkg/metrics"
)

// Mode is the token acquisition mode.
type Mode string

const (
	// ModeAPI uses the client credentials flow with configured application
	// credentials.
	ModeAPI Mode = "api"
	// ModeVisitor uses the anonymous embed token endpoint.
	ModeVisitor Mode = "visitor"
)

// DefaultVisitorTokenURL is the anonymous token endpoint the web player's
// embeds use.
const DefaultVisitorTokenURL = "https://open.spotify.com/get_access_token?reason=transport&productType=embed"

// CacheFileName is the token mirror inside os.TempDir. Token ownership is
// per process; concurrent bridge processes should point at distinct files.
const CacheFileName = ".spotify_token.json"

// tokenState is the persisted shape of the cache file.
type tokenState struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiresAt   int64  `json:"expires_at"`
	Type        string `json:"type"`
}

// TokenCache hands out a valid bearer token, refreshing it when it expired
// or was acquired under a different mode than currently configured. All
// callers of Token share one refresh: the cache mutex makes the refresh a
// critical section, so a concurrent wave of expired lookups performs exactly
// one network exchange.
type TokenCache struct {
	mu           sync.Mutex
	clientID     string
	clientSecret string
	mode         Mode
	state        tokenState

	// Path is the cache file location, defaulting to CacheFileName under
	// os.TempDir().
	Path string
	// TokenURL and VisitorURL override the endpoints in tests.
	TokenURL   string
	VisitorURL string
	// HTTPClient performs the visitor request, http.DefaultClient when nil.
	HTTPClient *http.Client

	Log     logrus.FieldLogger
	Metrics *metrics.Set

	now func() time.Time
}

// NewTokenCache builds a cache. Empty credentials select visitor mode from
// the start. An existing cache file is loaded so an unexpired token survives
// a restart.
func NewTokenCache(clientID, clientSecret string, log logrus.FieldLogger) *TokenCache {
	mode := ModeVisitor
	if clientID != "" && clientSecret != "" {
		mode = ModeAPI
	}
	tc := &TokenCache{
		clientID:     clientID,
		clientSecret: clientSecret,
		mode:         mode,
		Path:         filepath.Join(os.TempDir(), CacheFileName),
		Log:          log,
	}
	tc.loadFile()
	return tc
}

func (tc *TokenCache) timeNow() time.Time {
	if tc.now != nil {
		return tc.now()
	}
	return time.Now()
}

func (tc *TokenCache) httpClient() *http.Client {
	if tc.HTTPClient != nil {
		return tc.HTTPClient
	}
	return http.DefaultClient
}

// Token returns a bearer token valid for the currently configured mode,
// refreshing it first when necessary.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.valid() {
		return tc.state.AccessToken, nil
	}
	if err := tc.refreshLocked(ctx); err != nil {
		return "", err
	}
	return tc.state.AccessToken, nil
}

// Invalidate forces the next Token call to refresh, used after the API
// rejected the current token with 401.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.state.ExpiresAt = 0
}

func (tc *TokenCache) valid() bool {
	return tc.state.AccessToken != "" &&
		tc.timeNow().Unix() < tc.state.ExpiresAt &&
		tc.state.Type == string(tc.mode)
}

func (tc *TokenCache) refreshLocked(ctx context.Context) error {
	if tc.mode == ModeAPI {
		if err := tc.refreshAPI(ctx); err != nil {
			// A credential failure downgrades to visitor mode for the
			// rest of the process lifetime.
			tc.Log.WithError(err).Warn("client-credentials token failed, downgrading to visitor mode")
			tc.mode = ModeVisitor
		}
	}
	if tc.mode == ModeVisitor {
		if err := tc.refreshVisitor(ctx); err != nil {
			return err
		}
	}
	if tc.Metrics != nil {
		tc.Metrics.TokenRefreshes.WithLabelValues(string(tc.mode)).Inc()
	}
	tc.saveFile()
	return nil
}

func (tc *TokenCache) refreshAPI(ctx context.Context) error {
	tokenURL := tc.TokenURL
	if tokenURL == "" {
		tokenURL = libspotify.TokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     tc.clientID,
		ClientSecret: tc.clientSecret,
		TokenURL:     tokenURL,
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return err
	}
	expiresAt := tok.Expiry.Unix()
	tc.state = tokenState{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresAt - tc.timeNow().Unix(),
		ExpiresAt:   expiresAt,
		Type:        string(ModeAPI),
	}
	return nil
}

func (tc *TokenCache) refreshVisitor(ctx context.Context) error {
	visitorURL := tc.VisitorURL
	if visitorURL == "" {
		visitorURL = DefaultVisitorTokenURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, visitorURL, nil)
	if err != nil {
		return err
	}
	resp, err := tc.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("visitor token: %s", resp.Status)
	}
	var body struct {
		AccessToken string `json:"accessToken"`
		ExpiresAtMS int64  `json:"accessTokenExpirationTimestampMs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("visitor token decode: %w", err)
	}
	expiresAt := body.ExpiresAtMS / 1000
	tc.state = tokenState{
		AccessToken: body.AccessToken,
		ExpiresIn:   expiresAt - tc.timeNow().Unix(),
		ExpiresAt:   expiresAt,
		Type:        string(ModeVisitor),
	}
	return nil
}

func (tc *TokenCache) loadFile() {
	data, err := os.ReadFile(tc.Path)
	if err != nil {
		return
	}
	var st tokenState
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	tc.state = st
}

// saveFile mirrors the current token to disk. The write goes through a
// temporary file and a rename so readers never see a partial file.
func (tc *TokenCache) saveFile() {
	data, err := json.Marshal(tc.state)
	if err != nil {
		return
	}
	tmp := tc.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		tc.Log.WithError(err).Debug("token cache write failed")
		return
	}
	if err := os.Rename(tmp, tc.Path); err != nil {
		tc.Log.WithError(err).Debug("token cache rename failed")
	}
}
