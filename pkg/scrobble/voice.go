package scrobble

import (
	"context"
	"time"
)

// VoiceProbe reports whether the bridge's own voice connection on a player is
// currently confirmed active.
type VoiceProbe func(ctx context.Context, playerID string) bool

// AwaitVoice polls probe until it reports true, giving up after attempts
// tries with backoff between them. It returns false when the connection never
// confirmed or the context ended; callers abandon the batch in that case.
func AwaitVoice(ctx context.Context, probe VoiceProbe, playerID string, attempts int, backoff time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if probe(ctx, playerID) {
			return true
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
	return false
}
