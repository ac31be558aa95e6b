package lastfm

import (
	"context"
	"strconv"
)

// Image is one entry of the image list most Last.fm records carry. URLs of
// the provider's placeholder artwork end in a well-known hash; callers fall
// back to another artwork source in that case.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// UserInfo is the profile summary returned by user.getInfo.
type UserInfo struct {
	Name        string `json:"name"`
	RealName    string `json:"realname"`
	URL         string `json:"url"`
	Country     string `json:"country"`
	PlayCount   string `json:"playcount"`
	Playlists   string `json:"playlists"`
	TrackCount  string `json:"track_count"`
	ArtistCount string `json:"artist_count"`
	AlbumCount  string `json:"album_count"`
	Registered  struct {
		UnixTime int64 `json:"#text"`
	} `json:"registered"`
	Images []Image `json:"image"`
}

// DisplayName prefers the user's real name over the account name.
func (u UserInfo) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// UserInfo fetches the profile of the account behind sessionKey. The
// invalid-session error code surfaces here first when a user revoked the
// bridge's access on the Last.fm side.
func (c *Client) UserInfo(ctx context.Context, sessionKey string) (UserInfo, error) {
	var out struct {
		User UserInfo `json:"user"`
	}
	params := map[string]string{"method": "user.getInfo", "sk": sessionKey}
	if err := c.signedPost(ctx, params, &out); err != nil {
		return UserInfo{}, err
	}
	return out.User, nil
}

// ChartArtist is an artist reference inside top-chart entries.
type ChartArtist struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TopTrack is one entry of a user's most played tracks.
type TopTrack struct {
	Name      string      `json:"name"`
	URL       string      `json:"url"`
	PlayCount string      `json:"playcount"`
	Artist    ChartArtist `json:"artist"`
	Images    []Image     `json:"image"`
}

// UserTopTracks returns the user's most played tracks, limited to limit
// entries.
func (c *Client) UserTopTracks(ctx context.Context, user string, limit int) ([]TopTrack, error) {
	var out struct {
		TopTracks struct {
			Track []TopTrack `json:"track"`
		} `json:"toptracks"`
	}
	params := map[string]string{
		"method": "user.getTopTracks",
		"user":   user,
		"limit":  strconv.Itoa(limit),
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.TopTracks.Track, nil
}

// TopArtist is one entry of a user's most played artists.
type TopArtist struct {
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	PlayCount string  `json:"playcount"`
	Images    []Image `json:"image"`
}

// UserTopArtists returns the user's most played artists.
func (c *Client) UserTopArtists(ctx context.Context, user string, limit int) ([]TopArtist, error) {
	var out struct {
		TopArtists struct {
			Artist []TopArtist `json:"artist"`
		} `json:"topartists"`
	}
	params := map[string]string{
		"method": "user.getTopArtists",
		"user":   user,
		"limit":  strconv.Itoa(limit),
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.TopArtists.Artist, nil
}

// TopAlbum is one entry of a user's most played albums.
type TopAlbum struct {
	Name      string      `json:"name"`
	URL       string      `json:"url"`
	PlayCount string      `json:"playcount"`
	Artist    ChartArtist `json:"artist"`
	Images    []Image     `json:"image"`
}

// UserTopAlbums returns the user's most played albums.
func (c *Client) UserTopAlbums(ctx context.Context, user string, limit int) ([]TopAlbum, error) {
	var out struct {
		TopAlbums struct {
			Album []TopAlbum `json:"album"`
		} `json:"topalbums"`
	}
	params := map[string]string{
		"method": "user.getTopAlbums",
		"user":   user,
		"limit":  strconv.Itoa(limit),
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.TopAlbums.Album, nil
}

// RecentTrack is one entry of a user's listening history. Date is absent on
// the entry the user is currently listening to.
type RecentTrack struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Artist struct {
		Name string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Name string `json:"#text"`
	} `json:"album"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Images []Image `json:"image"`
}

// NowListening reports whether the entry is the in-progress track rather
// than a completed play.
func (t RecentTrack) NowListening() bool { return t.Date == nil }

// UserRecentTracks returns the user's listening history, newest first.
func (c *Client) UserRecentTracks(ctx context.Context, user string, limit int) ([]RecentTrack, error) {
	var out struct {
		RecentTracks struct {
			Track []RecentTrack `json:"track"`
		} `json:"recenttracks"`
	}
	params := map[string]string{
		"method": "user.getRecentTracks",
		"user":   user,
		"limit":  strconv.Itoa(limit),
	}
	if err := c.get(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.RecentTracks.Track, nil
}
