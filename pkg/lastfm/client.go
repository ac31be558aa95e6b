// Package lastfm implements the subset of the Last.fm web API the bridge
// needs: scrobbling calls, the account-link handshake and the profile reads
// shown on the link status page. Requests are performed using the provided
// http.Client allowing callers to substitute a test client.
package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// DefaultAPIURL is the production Last.fm endpoint.
const DefaultAPIURL = "https://ws.audioscrobbler.com/2.0/"

// CodeInvalidSession is the provider error code for a revoked or invalid
// session key. The pipeline reacts to it by unlinking the user locally.
const CodeInvalidSession = 9

// CodeTokenUnauthorized is returned by auth.getSession while the user has
// not yet approved the request token on the Last.fm site.
const CodeTokenUnauthorized = 14

// APIError is a coded failure returned by the Last.fm API body.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lastfm error %d: %s", e.Code, e.Message)
}

// IsInvalidSession reports whether err is the provider's invalid-session
// error.
func IsInvalidSession(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == CodeInvalidSession
}

// IsTokenUnauthorized reports whether err means the request token is still
// waiting for user approval. The link-complete handler polls on it.
func IsTokenUnauthorized(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == CodeTokenUnauthorized
}

// Client talks to the Last.fm web API. The zero value is not usable; fill in
// Key and Secret. APIURL and HTTPClient default to the production endpoint
// and http.DefaultClient.
type Client struct {
	Key        string
	Secret     string
	APIURL     string
	HTTPClient *http.Client
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return DefaultAPIURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// sign computes the api_sig parameter: the md5 hex digest of all parameters
// (except format) concatenated key-then-value in key order, followed by the
// shared secret.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "format" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sig strings.Builder
	for _, k := range keys {
		sig.WriteString(k)
		sig.WriteString(params[k])
	}
	sig.WriteString(c.Secret)

	hash := md5.Sum([]byte(sig.String()))
	return hex.EncodeToString(hash[:])
}

// signedPost performs an authenticated write call and decodes the JSON
// response into out when out is non-nil.
func (c *Client) signedPost(ctx context.Context, params map[string]string, out interface{}) error {
	params["api_key"] = c.Key
	params["api_sig"] = c.sign(params)
	params["format"] = "json"

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// get performs an unauthenticated read call.
func (c *Client) get(ctx context.Context, params map[string]string, out interface{}) error {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("api_key", c.Key)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL()+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// The API reports failures in the body with an HTTP status that is not
	// always non-200, so decode the error envelope first.
	var envelope struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	body := json.NewDecoder(resp.Body)
	raw := json.RawMessage{}
	if err := body.Decode(&raw); err != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("lastfm: %s", resp.Status)
		}
		return fmt.Errorf("lastfm decode: %w", err)
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != 0 {
		return &APIError{Code: envelope.Error, Message: envelope.Message}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("lastfm: %s", resp.Status)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("lastfm decode: %w", err)
		}
	}
	return nil
}
