package twitchapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
)

const (
	headerMessageType      = "Twitch-Eventsub-Message-Type"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	maxWebhookBody         = 1 << 20
	maxMessageAge          = 10 * time.Minute
)

// WebhookHandler receives EventSub webhook deliveries. Every request must
// carry a valid HMAC signature made with Secret; stale messages are refused.
type WebhookHandler struct {
	Secret         string
	OnStreamOnline StreamOnlineHandler

	// base is the lifetime context handlers run under, detached from the
	// request so Twitch gets its 2xx before posting starts.
	base     context.Context
	handlers sync.WaitGroup
	now      func() time.Time
}

// NewWebhookHandler returns a handler whose event callbacks run under ctx.
func NewWebhookHandler(ctx context.Context, secret string, fn StreamOnlineHandler) *WebhookHandler {
	return &WebhookHandler{Secret: secret, OnStreamOnline: fn, base: ctx, now: time.Now}
}

// Wait blocks until every dispatched event callback returns.
func (wh *WebhookHandler) Wait() { wh.handlers.Wait() }

func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "eventsub_webhook"))
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if !helix.VerifyEventSubNotification(wh.Secret, r.Header, string(body)) {
		log.Warn("eventsub webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Header.Get(headerMessageTimestamp))
	if err != nil || wh.now().Sub(ts) > maxMessageAge {
		log.Warn("eventsub webhook message too old or undated", slog.String("timestamp", r.Header.Get(headerMessageTimestamp)))
		http.Error(w, "stale message", http.StatusForbidden)
		return
	}

	msgType := r.Header.Get(headerMessageType)
	telemetry.ObserveEventSub("webhook", msgType)

	var p notificationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	switch msgType {
	case MessageTypeVerification:
		log.Info("eventsub webhook verification", slog.String("type", p.Subscription.Type), slog.String("subscription_id", p.Subscription.ID))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, p.Challenge)

	case MessageTypeRevocation:
		log.Warn("eventsub subscription revoked",
			slog.String("type", p.Subscription.Type),
			slog.String("status", p.Subscription.Status),
			slog.Any("condition", p.Subscription.Condition))
		w.WriteHeader(http.StatusNoContent)

	case MessageTypeNotification:
		ev, ok, err := decodeStreamOnline(p)
		if err != nil {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}
		if ok && wh.OnStreamOnline != nil {
			base := wh.base
			if base == nil {
				base = context.Background()
			}
			wh.handlers.Add(1)
			go func() {
				defer wh.handlers.Done()
				wh.OnStreamOnline(base, ev)
			}()
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
