package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/twitchapi"
)

// HandleTwitchOAuthStart initiates the Twitch OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	if !h.addOAuthState(st, time.Now().Add(oauthStateTTL)) {
		http.Error(w, "too many pending authorizations", http.StatusServiceUnavailable)
		return
	}
	authURL, err := h.opts.Auth.AuthorizeURL(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the authorization code and stores the
// user token, which unblocks EventSub WebSocket subscription.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Error(w, "authorization denied: "+e, http.StatusBadRequest)
		return
	}
	code, st := q.Get("code"), q.Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "oauth"))
	tok, err := h.opts.Auth.Exchange(r.Context(), code)
	if err != nil {
		log.Error("twitch code exchange failed", slog.Any("err", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.opts.Tokens.Set(twitchapi.Provider, tok)
	log.Info("twitch user token authorized", slog.Time("expires", tok.Expiry), slog.String("scope", tok.Scope))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":                "ok",
		"scopes":                strings.Fields(tok.Scope),
		"expiry":                tok.Expiry,
		"refresh_token_present": tok.RefreshToken != "",
	}); err != nil {
		log.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
