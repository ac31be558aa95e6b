// Package track defines the playback-node track model and the classifier
// deciding whether a finished or now-playing track can be logged to a
// listener's scrobble account. The rest of the application depends on this
// package so it stays agnostic about which audio node produced the event.
package track

// Source identifies the platform a track was resolved from. The audio node
// reports it verbatim in the track payload.
type Source string

const (
	SourceYouTube    Source = "youtube"
	SourceSoundCloud Source = "soundcloud"
	SourceSpotify    Source = "spotify"
	SourceDeezer     Source = "deezer"
	SourceAppleMusic Source = "applemusic"
	SourceTidal      Source = "tidal"
	SourceLocal      Source = "local"
	SourceHTTP       Source = "http"
	SourceOther      Source = "other"
)

// Track mirrors the track descriptor received from the audio node. Values are
// immutable once the track finished playing.
type Track struct {
	// URI is the canonical link for the track and keys the per-user
	// dedup marks.
	URI string
	// Title is the full display title. For YouTube uploads this usually
	// contains both artist and song name.
	Title string
	// SingleTitle is the bare song name without featured-artist suffixes.
	SingleTitle string
	// Author is the uploader or primary artist as reported by the source.
	Author string
	// AlbumName is the album the track belongs to, when the source knows it.
	AlbumName string
	// DurationMS is the track length in milliseconds.
	DurationMS int64
	// Source names the platform the track was resolved from.
	Source Source
	// Stream is true for live streams, which are never scrobbled.
	Stream bool
	// Requester is the user ID that queued the track. Empty for autoplay.
	Requester string
	// Autoplay marks tracks the node queued on its own.
	Autoplay bool
	// YouTubeID is set when the track resolved to a YouTube video.
	YouTubeID string
}
