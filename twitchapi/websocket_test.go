package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsFrame(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"metadata": map[string]any{
			"message_id":        msgType + "-id",
			"message_type":      msgType,
			"message_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
		"payload": payload,
	})
	require.NoError(t, err)
	return b
}

func welcome(id string) any {
	return map[string]any{"session": map[string]any{"id": id, "status": "connected", "keepalive_timeout_seconds": 10}}
}

func notification(id, login string) any {
	return map[string]any{
		"subscription": map[string]any{"id": "sub", "type": "stream.online", "version": "1", "status": "enabled"},
		"event": map[string]any{
			"id": id, "broadcaster_user_id": "42", "broadcaster_user_login": login,
			"broadcaster_user_name": login, "type": "live", "started_at": "2026-10-19T12:00:00Z",
		},
	}
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

// holdOpen keeps the connection until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestEventSubSocket_SubscribesAndDispatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-1")))
		_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeKeepalive, map[string]any{}))
		_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeNotification, notification("900", "Foo")))
		holdOpen(conn)
	}))
	defer server.Close()

	var mu sync.Mutex
	var sessions []string
	events := make(chan StreamOnlineEvent, 1)
	sock := &EventSubSocket{
		URL: wsURL(server, "/ws"),
		Subscribe: func(_ context.Context, sessionID string) error {
			mu.Lock()
			defer mu.Unlock()
			sessions = append(sessions, sessionID)
			return nil
		},
		OnStreamOnline: func(_ context.Context, ev StreamOnlineEvent) { events <- ev },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sock.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, "foo:900", ev.OccurrenceKey())
	case <-time.After(2 * time.Second):
		t.Fatal("no stream.online dispatched")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sess-1"}, sessions)
}

func TestEventSubSocket_ReconnectKeepsSubscriptions(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		switch r.URL.Path {
		case "/ws":
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-1")))
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeReconnect, map[string]any{
				"session": map[string]any{"id": "sess-1", "status": "reconnecting", "reconnect_url": wsURL(server, "/moved")},
			}))
		case "/moved":
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-2")))
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeNotification, notification("901", "bar")))
		}
		holdOpen(conn)
	}))
	defer server.Close()

	var mu sync.Mutex
	subscribed := 0
	events := make(chan StreamOnlineEvent, 1)
	sock := &EventSubSocket{
		URL: wsURL(server, "/ws"),
		Subscribe: func(context.Context, string) error {
			mu.Lock()
			subscribed++
			mu.Unlock()
			return nil
		},
		OnStreamOnline: func(_ context.Context, ev StreamOnlineEvent) { events <- ev },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sock.Run(ctx) }()

	select {
	case ev := <-events:
		assert.Equal(t, "bar:901", ev.OccurrenceKey())
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, subscribed)
}

func TestEventSubSocket_ReconnectKeepsOldSessionUntilWelcome(t *testing.T) {
	oldDispatched := make(chan struct{})
	oldClosed := make(chan struct{})
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		switch r.URL.Path {
		case "/ws":
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-1")))
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeReconnect, map[string]any{
				"session": map[string]any{"id": "sess-1", "status": "reconnecting", "reconnect_url": wsURL(server, "/moved")},
			}))
			// Twitch keeps delivering on the old session until the new one is welcomed.
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeNotification, notification("900", "foo")))
			holdOpen(conn)
			close(oldClosed)
		case "/moved":
			select {
			case <-oldDispatched:
			case <-time.After(2 * time.Second):
			}
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-2")))
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeNotification, notification("901", "bar")))
			holdOpen(conn)
		}
	}))
	defer server.Close()

	events := make(chan StreamOnlineEvent, 2)
	sock := &EventSubSocket{
		URL:       wsURL(server, "/ws"),
		Subscribe: func(context.Context, string) error { return nil },
		OnStreamOnline: func(_ context.Context, ev StreamOnlineEvent) {
			if ev.ID == "900" {
				close(oldDispatched)
			}
			events <- ev
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sock.Run(ctx) }()

	var keys []string
	for len(keys) < 2 {
		select {
		case ev := <-events:
			keys = append(keys, ev.OccurrenceKey())
		case <-time.After(5 * time.Second):
			t.Fatalf("events after reconnect = %v, want both sessions' notifications", keys)
		}
	}
	assert.ElementsMatch(t, []string{"foo:900", "bar:901"}, keys)

	select {
	case <-oldClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("old connection not closed after the new session was welcomed")
	}
}

func TestEventSubSocket_ResubscribesAfterDrop(t *testing.T) {
	var mu sync.Mutex
	var sessions []string
	conns := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-1")))
			return // drop
		}
		_ = conn.WriteMessage(websocket.TextMessage, wsFrame(t, MessageTypeWelcome, welcome("sess-2")))
		holdOpen(conn)
	}))
	defer server.Close()

	subscribedTwice := make(chan struct{})
	sock := &EventSubSocket{
		URL:            wsURL(server, "/ws"),
		ReconnectDelay: 10 * time.Millisecond,
		Subscribe: func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			sessions = append(sessions, id)
			if len(sessions) == 2 {
				close(subscribedTwice)
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sock.Run(ctx) }()

	select {
	case <-subscribedTwice:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not resubscribed after drop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sess-1", "sess-2"}, sessions)
}
