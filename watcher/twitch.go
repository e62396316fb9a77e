package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/oauth"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/twitchapi"
)

// Fallbacks when the stream lookup after stream.online fails.
const (
	DefaultTwitchTitle = "Live now!"
	DefaultTwitchGame  = "Unknown"
)

// TwitchAPI is the Helix surface the Twitch watcher uses.
type TwitchAPI interface {
	ResolveUsers(ctx context.Context, logins []string) (map[string]twitchapi.User, error)
	GetStream(ctx context.Context, userID string) (twitchapi.Stream, bool, error)
	CreateWebhookSubscription(ctx context.Context, broadcasterID, callback, secret string) (string, error)
	CreateWebSocketSubscription(ctx context.Context, userToken, sessionID, broadcasterID string) error
}

// Twitch announces stream.online events for a fixed set of broadcasters.
type Twitch struct {
	api   TwitchAPI
	relay Announcer
	names NameFunc
	log   *slog.Logger

	mu    sync.RWMutex
	users map[string]twitchapi.User // by lower-case login
}

// NewTwitch returns a watcher; call Resolve before subscribing.
func NewTwitch(api TwitchAPI, relay Announcer, names NameFunc) *Twitch {
	return &Twitch{
		api:   api,
		relay: relay,
		names: names,
		log:   slog.Default().With(slog.String("component", "twitch_watcher")),
		users: map[string]twitchapi.User{},
	}
}

// Resolve maps logins to broadcaster ids. Unknown logins are logged and
// skipped; it fails only when none resolve.
func (t *Twitch) Resolve(ctx context.Context, logins []string) error {
	users, err := t.api.ResolveUsers(ctx, logins)
	if err != nil {
		return fmt.Errorf("resolve twitch channels: %w", err)
	}
	var missing []string
	for _, l := range logins {
		if _, ok := users[strings.ToLower(l)]; !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		t.log.Warn("twitch channels not found", slog.Any("channels", missing))
	}
	if len(users) == 0 {
		return errors.New("none of the configured twitch channels exist")
	}
	t.mu.Lock()
	t.users = users
	t.mu.Unlock()
	for login, u := range users {
		t.log.Info("watching twitch channel", slog.String("channel", login), slog.String("broadcaster_id", u.ID))
	}
	return nil
}

// Users returns the resolved broadcasters sorted by login.
func (t *Twitch) Users() []twitchapi.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]twitchapi.User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}

// HandleStreamOnline looks up the stream's title and game and announces it.
func (t *Twitch) HandleStreamOnline(ctx context.Context, ev twitchapi.StreamOnlineEvent) {
	login := strings.ToLower(ev.BroadcasterUserLogin)
	log := t.log.With(slog.String("channel", login), slog.String("stream_id", ev.ID))
	log.Info("stream.online received", slog.String("type", ev.Type))

	title, game := DefaultTwitchTitle, DefaultTwitchGame
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	s, ok, err := t.api.GetStream(lookupCtx, ev.BroadcasterUserID)
	cancel()
	switch {
	case err != nil:
		log.Warn("stream lookup failed; using defaults", slog.Any("err", err))
	case !ok:
		log.Warn("stream not listed yet; using defaults")
	default:
		if s.Title != "" {
			title = s.Title
		}
		if s.GameName != "" {
			game = s.GameName
		}
	}

	fallback := ev.BroadcasterUserName
	if fallback == "" {
		fallback = login
	}
	display, fan := names(t.names, login, fallback)
	announce(ctx, log, t.relay,
		notify.Occurrence{Platform: dedup.Twitch, Channel: login, Key: ev.OccurrenceKey()},
		notify.Details{Channel: login, DisplayName: display, FanName: fan, Title: title, Game: game},
	)
}

// SubscribeWebhook creates a webhook stream.online subscription per
// broadcaster. Failures are joined; successful subscriptions stay.
func (t *Twitch) SubscribeWebhook(ctx context.Context, callback, secret string) error {
	var errs []error
	for _, u := range t.Users() {
		id, err := t.api.CreateWebhookSubscription(ctx, u.ID, callback, secret)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Login, err))
			continue
		}
		t.log.Info("eventsub webhook subscription requested", slog.String("channel", u.Login), slog.String("subscription_id", id))
	}
	return errors.Join(errs...)
}

// RunWebSocket listens on an EventSub WebSocket until ctx ends. Each new
// session is subscribed with the current Twitch user token from tokens,
// waiting for one to be authorized if needed.
func (t *Twitch) RunWebSocket(ctx context.Context, url string, tokens *oauth.Store) error {
	sock := &twitchapi.EventSubSocket{
		URL: url,
		Subscribe: func(ctx context.Context, sessionID string) error {
			tok, ok := tokens.Get(twitchapi.Provider)
			if !ok || !tok.Valid() {
				t.log.Info("waiting for twitch user authorization (visit /auth/twitch/start)")
				var err error
				if tok, err = tokens.Wait(ctx, twitchapi.Provider); err != nil {
					return err
				}
			}
			var errs []error
			for _, u := range t.Users() {
				if err := t.api.CreateWebSocketSubscription(ctx, tok.AccessToken, sessionID, u.ID); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", u.Login, err))
					continue
				}
				t.log.Info("eventsub websocket subscription created", slog.String("channel", u.Login))
			}
			return errors.Join(errs...)
		},
		OnStreamOnline: t.HandleStreamOnline,
	}
	return sock.Run(ctx)
}
