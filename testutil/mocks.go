// Package testutil provides in-process fakes of the Twitch endpoints the relay
// calls, for tests that exercise the real clients end to end.
package testutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer serves the app token endpoint and the Helix users, streams
// and EventSub subscription endpoints from in-memory state.
type MockTwitchServer struct {
	*httptest.Server

	mu            sync.Mutex
	users         map[string]string // login -> id
	streams       map[string]map[string]string
	subscriptions []map[string]any
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		users:   make(map[string]string),
		streams: make(map[string]map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", m.handleToken)
	mux.HandleFunc("GET /helix/users", m.handleUsers)
	mux.HandleFunc("GET /helix/streams", m.handleStreams)
	mux.HandleFunc("POST /helix/eventsub/subscriptions", m.handleSubscribe)
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

// TokenURL is the app token endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// HelixURL is the Helix API base.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// AddUser registers a broadcaster.
func (m *MockTwitchServer) AddUser(id, login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[login] = id
}

// SetLive lists a live stream for userID.
func (m *MockTwitchServer) SetLive(userID, streamID, title, game string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[userID] = map[string]string{
		"id": streamID, "user_id": userID, "title": title, "game_name": game, "type": "live",
	}
}

// Subscriptions returns the subscription requests received so far.
func (m *MockTwitchServer) Subscriptions() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.subscriptions...)
}

func (m *MockTwitchServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, "bad grant", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": "app-token", "expires_in": 3600, "token_type": "bearer"})
}

func (m *MockTwitchServer) handleUsers(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := []map[string]string{}
	for _, login := range r.URL.Query()["login"] {
		if id, ok := m.users[login]; ok {
			data = append(data, map[string]string{"id": id, "login": login, "display_name": login})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *MockTwitchServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := []map[string]string{}
	if s, ok := m.streams[r.URL.Query().Get("user_id")]; ok {
		data = append(data, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (m *MockTwitchServer) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, body)
	id := fmt.Sprintf("sub-%d", len(m.subscriptions))
	m.mu.Unlock()

	body["id"] = id
	body["status"] = "webhook_callback_verification_pending"
	writeJSON(w, http.StatusAccepted, map[string]any{"data": []any{body}, "total": 1})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// SignEventSub computes the Twitch-Eventsub-Message-Signature header for a
// webhook delivery.
func SignEventSub(secret, messageID, timestamp, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID + timestamp + body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
