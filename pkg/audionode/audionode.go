// Package audionode connects to the audio playback node and translates its
// JSON event stream into calls on the scrobble pipeline. The node owns voice
// playback entirely; the bridge only observes track lifecycle and voice
// state events.
package audionode

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"Scrobble-Bridge-Go/pkg/scrobble"
	"Scrobble-Bridge-Go/pkg/track"
)

// EventSink receives the decoded player events. *scrobble.Pipeline satisfies
// it; tests substitute a recorder.
type EventSink interface {
	HandleTrackStart(ctx context.Context, ev scrobble.PlayerEvent)
	HandleTrackEnd(ctx context.Context, ev scrobble.PlayerEvent)
	HandleVoiceJoin(ctx context.Context, ev scrobble.PlayerEvent, joined scrobble.Listener)
	HandlePlayerDestroyed(playerID string)
}

// reconnectBackoff is the wait between connection attempts.
const reconnectBackoff = 5 * time.Second

// Listener maintains the websocket connection to the node and dispatches
// events. It also tracks the node-reported voice connection state per
// player, which the pipeline polls before submitting a batch.
type Listener struct {
	URL      string
	Password string
	Sink     EventSink
	Dialer   *websocket.Dialer
	Log      logrus.FieldLogger

	mu        sync.RWMutex
	connected map[string]bool
}

// VoiceConnected reports the last voice state the node announced for
// playerID. It satisfies scrobble.VoiceProbe.
func (l *Listener) VoiceConnected(_ context.Context, playerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected[playerID]
}

func (l *Listener) setConnected(playerID string, up bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected == nil {
		l.connected = make(map[string]bool)
	}
	if up {
		l.connected[playerID] = true
	} else {
		delete(l.connected, playerID)
	}
}

// Run connects to the node and consumes events until ctx ends, reconnecting
// after connection failures.
func (l *Listener) Run(ctx context.Context) error {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if l.Password != "" {
		header.Set("Authorization", l.Password)
	}

	for {
		conn, _, err := dialer.DialContext(ctx, l.URL, header)
		if err != nil {
			l.Log.WithError(err).Warn("audio node connection failed")
		} else {
			l.Log.WithField("url", l.URL).Info("connected to audio node")
			l.readLoop(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	// The watchdog is the sole owner of the close: it fires early on
	// cancellation to unblock ReadMessage, or once the loop has exited.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				l.Log.WithError(err).Warn("audio node read failed")
			}
			return
		}
		l.handleMessage(ctx, data)
	}
}

// trackPayload is the node's track descriptor.
type trackPayload struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	SingleTitle string `json:"singleTitle"`
	Author      string `json:"author"`
	AlbumName   string `json:"albumName"`
	DurationMS  int64  `json:"durationMs"`
	SourceName  string `json:"sourceName"`
	IsStream    bool   `json:"isStream"`
	RequesterID string `json:"requesterId"`
	Autoplay    bool   `json:"autoplay"`
	YouTubeID   string `json:"youtubeId"`
}

func (t *trackPayload) toTrack() track.Track {
	return track.Track{
		URI:         t.URI,
		Title:       t.Title,
		SingleTitle: t.SingleTitle,
		Author:      t.Author,
		AlbumName:   t.AlbumName,
		DurationMS:  t.DurationMS,
		Source:      track.Source(t.SourceName),
		Stream:      t.IsStream,
		Requester:   t.RequesterID,
		Autoplay:    t.Autoplay,
		YouTubeID:   t.YouTubeID,
	}
}

// memberPayload is one voice channel member.
type memberPayload struct {
	ID       string `json:"id"`
	Bot      bool   `json:"bot"`
	Deaf     bool   `json:"deaf"`
	SelfDeaf bool   `json:"selfDeaf"`
}

func (m memberPayload) toListener() scrobble.Listener {
	return scrobble.Listener{UserID: m.ID, Bot: m.Bot, Deaf: m.Deaf, SelfDeaf: m.SelfDeaf}
}

// message is the envelope for everything the node sends.
type message struct {
	Op       string          `json:"op"`
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Reason   string          `json:"reason"`
	PlayedMS int64           `json:"playedMs"`
	Track    *trackPayload   `json:"track"`
	Roster   []memberPayload `json:"roster"`
	Member   *memberPayload  `json:"member"`
	State    *struct {
		Connected bool `json:"connected"`
	} `json:"state"`
}

func (l *Listener) handleMessage(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		l.Log.WithError(err).Debug("undecodable node message")
		return
	}

	switch msg.Op {
	case "playerUpdate":
		if msg.State != nil {
			l.setConnected(msg.PlayerID, msg.State.Connected)
		}
		return
	case "event":
	default:
		return
	}

	ev := scrobble.PlayerEvent{
		PlayerID: msg.PlayerID,
		Reason:   msg.Reason,
		Played:   time.Duration(msg.PlayedMS) * time.Millisecond,
	}
	if msg.Track != nil {
		ev.Track = msg.Track.toTrack()
	}
	for _, m := range msg.Roster {
		ev.Roster = append(ev.Roster, m.toListener())
	}

	// Dispatch off the read loop; a batch can wait on the voice probe for
	// several seconds.
	switch msg.Type {
	case "TrackStartEvent":
		go l.Sink.HandleTrackStart(ctx, ev)
	case "TrackEndEvent":
		go l.Sink.HandleTrackEnd(ctx, ev)
	case "VoiceJoinEvent":
		if msg.Member != nil {
			go l.Sink.HandleVoiceJoin(ctx, ev, msg.Member.toListener())
		}
	case "PlayerDestroyedEvent":
		l.setConnected(msg.PlayerID, false)
		l.Sink.HandlePlayerDestroyed(msg.PlayerID)
	}
}
