package twitchapi

import (
	"encoding/json"
	"strings"
)

// EventSub message types, shared by the WebSocket metadata and the webhook
// Twitch-Eventsub-Message-Type header.
const (
	MessageTypeWelcome      = "session_welcome"
	MessageTypeKeepalive    = "session_keepalive"
	MessageTypeNotification = "notification"
	MessageTypeReconnect    = "session_reconnect"
	MessageTypeRevocation   = "revocation"
	// webhook only
	MessageTypeVerification = "webhook_callback_verification"
)

// StreamOnlineEvent is the event body of a stream.online notification.
type StreamOnlineEvent struct {
	ID                   string `json:"id"`
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
	Type                 string `json:"type"`
	StartedAt            string `json:"started_at"`
}

// OccurrenceKey identifies the broadcast session this event announces. The
// stream id is stable for the whole broadcast; started_at stands in when an
// event arrives without one.
func (e StreamOnlineEvent) OccurrenceKey() string {
	id := e.ID
	if id == "" {
		id = e.StartedAt
	}
	return strings.ToLower(e.BroadcasterUserLogin) + ":" + id
}

// Subscription is the subscription block carried by notifications and
// revocations.
type Subscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
}

// notificationPayload is shared by WebSocket notification payloads and webhook
// request bodies.
type notificationPayload struct {
	Subscription Subscription    `json:"subscription"`
	Event        json.RawMessage `json:"event"`
	Challenge    string          `json:"challenge,omitempty"`
}

type wsMetadata struct {
	MessageID        string `json:"message_id"`
	MessageType      string `json:"message_type"`
	MessageTimestamp string `json:"message_timestamp"`
	SubscriptionType string `json:"subscription_type,omitempty"`
}

type wsMessage struct {
	Metadata wsMetadata      `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type wsSession struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

type wsSessionPayload struct {
	Session wsSession `json:"session"`
}

// decodeStreamOnline extracts the stream.online event from a notification, or
// ok=false for any other subscription type.
func decodeStreamOnline(p notificationPayload) (StreamOnlineEvent, bool, error) {
	if p.Subscription.Type != StreamOnline {
		return StreamOnlineEvent{}, false, nil
	}
	var ev StreamOnlineEvent
	if err := json.Unmarshal(p.Event, &ev); err != nil {
		return StreamOnlineEvent{}, false, err
	}
	return ev, true, nil
}
