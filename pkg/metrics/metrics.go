// Package metrics defines the Prometheus instrumentation for the bridge.
// A single Set is created at startup and handed to the pipeline and the
// provider clients; tests construct their own Set on a fresh registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the collectors the application updates.
type Set struct {
	// Submissions counts provider calls that succeeded, by kind
	// (scrobble, now_playing).
	Submissions *prometheus.CounterVec
	// TrackSkips counts tracks rejected by the classifier, by reason.
	TrackSkips *prometheus.CounterVec
	// UserSkips counts roster members filtered by the gate, by reason.
	UserSkips *prometheus.CounterVec
	// ProviderErrors counts failed provider calls, by outcome
	// (invalid_session, error).
	ProviderErrors *prometheus.CounterVec
	// TokenRefreshes counts metadata-provider token refreshes, by mode.
	TokenRefreshes *prometheus.CounterVec
}

// New registers and returns a Set on reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_submissions_total",
			Help: "Successful scrobble provider submissions.",
		}, []string{"kind"}),
		TrackSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_track_skips_total",
			Help: "Tracks rejected by the eligibility classifier.",
		}, []string{"reason"}),
		UserSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_user_skips_total",
			Help: "Roster members filtered out before submission.",
		}, []string{"reason"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_provider_errors_total",
			Help: "Failed scrobble provider submissions.",
		}, []string{"outcome"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_token_refreshes_total",
			Help: "Metadata provider access token refreshes.",
		}, []string{"mode"}),
	}
	reg.MustRegister(s.Submissions, s.TrackSkips, s.UserSkips, s.ProviderErrors, s.TokenRefreshes)
	return s
}
