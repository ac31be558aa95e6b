// Link flow endpoints. Linking is a two-step handshake: LinkStart hands the
// caller an approval URL, LinkComplete waits for the user to approve it on
// the provider's site and then stores the resulting session key.

package handlers

import (
	"net/http"
	"time"

	"Scrobble-Bridge-Go/pkg/lastfm"
	"Scrobble-Bridge-Go/pkg/session"
)

// LinkStart requests a fresh link token and returns the URL the user must
// open to approve it.
func (app *Application) LinkStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		respondJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := app.Accounts.GetToken(r.Context())
	if err != nil {
		app.Log.WithError(err).Error("link token request failed")
		respondJSONError(w, http.StatusBadGateway, "link service unavailable")
		return
	}

	window := time.Duration(app.pollAttempts()) * app.pollInterval()
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":                req.UserID,
		"token":                  token,
		"auth_url":               app.Accounts.AuthURL(token),
		"approve_within_seconds": int(window / time.Second),
	})
}

// LinkComplete polls the provider until the token from LinkStart has been
// approved, then persists the session and warms the cache. The poll is
// bounded; an unapproved token eventually answers 408.
func (app *Application) LinkComplete(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	token := r.URL.Query().Get("token")
	if userID == "" || token == "" {
		respondJSONError(w, http.StatusBadRequest, "user_id and token are required")
		return
	}

	ctx := r.Context()
	for attempt := 0; attempt < app.pollAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(app.pollInterval()):
			}
		}

		info, err := app.Accounts.GetSession(ctx, token)
		if err != nil {
			if lastfm.IsTokenUnauthorized(err) {
				continue
			}
			app.Log.WithError(err).Error("session exchange failed")
			respondJSONError(w, http.StatusBadGateway, "link service unavailable")
			return
		}

		s := session.Session{
			UserID:          userID,
			SessionKey:      info.Key,
			Username:        info.Name,
			ScrobbleEnabled: true,
		}
		if err := app.Store.SetSession(ctx, s); err != nil {
			app.Log.WithError(err).WithField("user_id", userID).Error("session persist failed")
			respondJSONError(w, http.StatusInternalServerError, "failed to store session")
			return
		}
		app.Sessions.Put(s)
		app.Log.WithField("user_id", userID).Info("account linked")
		respondJSON(w, http.StatusOK, map[string]string{"username": info.Name})
		return
	}

	respondJSONError(w, http.StatusRequestTimeout, "link was not approved in time")
}

// Unlink drops the stored session key. The settings row survives so the
// scrobble toggle keeps its value across relinks.
func (app *Application) Unlink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		respondJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := app.Store.ClearSessionKey(r.Context(), req.UserID); err != nil {
		app.Log.WithError(err).WithField("user_id", req.UserID).Error("unlink failed")
		respondJSONError(w, http.StatusInternalServerError, "failed to unlink")
		return
	}
	app.Sessions.Forget(req.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Settings toggles scrobbling for a user. The flag is honored by the
// eligibility gate on every track event.
func (app *Application) Settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		UserID          string `json:"user_id"`
		ScrobbleEnabled *bool  `json:"scrobble_enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.ScrobbleEnabled == nil {
		respondJSONError(w, http.StatusBadRequest, "user_id and scrobble_enabled are required")
		return
	}

	s, err := app.Sessions.Lookup(r.Context(), req.UserID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	s.UserID = req.UserID
	s.ScrobbleEnabled = *req.ScrobbleEnabled
	if err := app.Store.SetSession(r.Context(), s); err != nil {
		app.Log.WithError(err).WithField("user_id", req.UserID).Error("settings persist failed")
		respondJSONError(w, http.StatusInternalServerError, "failed to store settings")
		return
	}
	app.Sessions.Put(s)
	w.WriteHeader(http.StatusNoContent)
}
