package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
)

const DefaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws"

// StreamOnlineHandler receives stream.online events. It runs on its own
// goroutine per event.
type StreamOnlineHandler func(ctx context.Context, ev StreamOnlineEvent)

// SubscribeFunc creates subscriptions for a freshly welcomed session.
type SubscribeFunc func(ctx context.Context, sessionID string) error

// EventSubSocket holds an EventSub WebSocket session open and dispatches
// stream.online notifications. After a session_reconnect the new session
// inherits every subscription and the old connection keeps delivering until
// the new one is welcomed; after any other disconnect a new session is opened
// and Subscribe runs again.
type EventSubSocket struct {
	URL            string
	Subscribe      SubscribeFunc
	OnStreamOnline StreamOnlineHandler
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

var errReconnect = errors.New("eventsub: server requested reconnect")

// Run blocks until ctx is cancelled.
func (s *EventSubSocket) Run(ctx context.Context) error {
	log := slog.Default().With(slog.String("component", "eventsub_ws"))
	base := s.URL
	if base == "" {
		base = DefaultEventSubURL
	}
	delay := s.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	var handlers sync.WaitGroup
	defer handlers.Wait()

	var prev *websocket.Conn
	url, resubscribe := base, true
	for {
		next, old, err := s.session(ctx, url, resubscribe, prev, &handlers)
		prev = old
		telemetry.SetEventSubConnected(false)
		if ctx.Err() != nil {
			if prev != nil {
				_ = prev.Close()
			}
			return nil
		}
		if errors.Is(err, errReconnect) && next != "" {
			log.Info("eventsub reconnect requested")
			url, resubscribe = next, false
			continue
		}
		log.Warn("eventsub session ended", slog.Any("err", err), slog.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		url, resubscribe = base, true
	}
}

// session runs one WebSocket connection. prev, when set, is the connection
// that asked for this reconnect; it keeps delivering notifications until this
// session is welcomed. On session_reconnect the open connection is returned
// with the reconnect URL and errReconnect.
func (s *EventSubSocket) session(ctx context.Context, url string, subscribe bool, prev *websocket.Conn, handlers *sync.WaitGroup) (string, *websocket.Conn, error) {
	closePrev := func() {}
	if prev != nil {
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			s.drain(ctx, prev, handlers)
		}()
		closePrev = sync.OnceFunc(func() {
			_ = prev.Close()
			<-drained
		})
		defer closePrev()
	}

	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("dial %s: %w", url, err)
	}
	handOff := false
	defer func() {
		if !handOff {
			_ = conn.Close()
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// Twitch sends the welcome within 10 seconds of connecting.
	keepalive := 10 * time.Second
	welcomed := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(keepalive + 5*time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", nil, fmt.Errorf("read: %w", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("eventsub: malformed message", slog.Any("err", err))
			continue
		}
		telemetry.ObserveEventSub("websocket", msg.Metadata.MessageType)

		switch msg.Metadata.MessageType {
		case MessageTypeWelcome:
			var p wsSessionPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return "", nil, fmt.Errorf("decode welcome: %w", err)
			}
			if p.Session.KeepaliveTimeoutSeconds > 0 {
				keepalive = time.Duration(p.Session.KeepaliveTimeoutSeconds) * time.Second
			}
			if !welcomed && subscribe && s.Subscribe != nil {
				if err := s.Subscribe(ctx, p.Session.ID); err != nil {
					return "", nil, fmt.Errorf("subscribe session %s: %w", p.Session.ID, err)
				}
			}
			welcomed = true
			closePrev()
			telemetry.SetEventSubConnected(true)
			slog.Info("eventsub session welcomed", slog.String("session_id", p.Session.ID), slog.Duration("keepalive", keepalive))

		case MessageTypeKeepalive:

		case MessageTypeNotification:
			s.dispatch(ctx, msg.Payload, handlers)

		case MessageTypeReconnect:
			var p wsSessionPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return "", nil, fmt.Errorf("decode reconnect: %w", err)
			}
			if p.Session.ReconnectURL == "" {
				return "", nil, errors.New("reconnect without url")
			}
			handOff = true
			_ = conn.SetReadDeadline(time.Time{})
			return p.Session.ReconnectURL, conn, errReconnect

		case MessageTypeRevocation:
			var p notificationPayload
			_ = json.Unmarshal(msg.Payload, &p)
			slog.Warn("eventsub subscription revoked",
				slog.String("type", p.Subscription.Type),
				slog.String("status", p.Subscription.Status),
				slog.Any("condition", p.Subscription.Condition))
		}
	}
}

// drain dispatches notifications still arriving on a connection that is
// being replaced, until it is closed.
func (s *EventSubSocket) drain(ctx context.Context, conn *websocket.Conn, handlers *sync.WaitGroup) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Metadata.MessageType != MessageTypeNotification {
			continue
		}
		telemetry.ObserveEventSub("websocket", msg.Metadata.MessageType)
		s.dispatch(ctx, msg.Payload, handlers)
	}
}

func (s *EventSubSocket) dispatch(ctx context.Context, payload json.RawMessage, handlers *sync.WaitGroup) {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("eventsub: malformed notification", slog.Any("err", err))
		return
	}
	ev, ok, err := decodeStreamOnline(p)
	if err != nil {
		slog.Warn("eventsub: malformed stream.online event", slog.Any("err", err))
		return
	}
	if !ok || s.OnStreamOnline == nil {
		return
	}
	handlers.Add(1)
	go func() {
		defer handlers.Done()
		s.OnStreamOnline(context.WithoutCancel(ctx), ev)
	}()
}
