package lastfm

import (
	"context"
	"fmt"
	"net/url"
)

// GetToken requests an unauthorized request token starting the account link
// handshake. The user must approve it on the Last.fm site before it can be
// exchanged for a session.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	params := map[string]string{"method": "auth.getToken"}
	if err := c.signedPost(ctx, params, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// AuthURL builds the page the user opens to approve the request token.
func (c *Client) AuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s",
		url.QueryEscape(c.Key), url.QueryEscape(token))
}

// SessionInfo is the credential returned once the user approved the token.
type SessionInfo struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// GetSession exchanges an approved request token for a session key. While the
// user has not approved the token yet the API answers with a coded error
// (code 14), which callers poll on.
func (c *Client) GetSession(ctx context.Context, token string) (SessionInfo, error) {
	var out struct {
		Session SessionInfo `json:"session"`
	}
	params := map[string]string{"method": "auth.getSession", "token": token}
	if err := c.signedPost(ctx, params, &out); err != nil {
		return SessionInfo{}, err
	}
	return out.Session, nil
}
