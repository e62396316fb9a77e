package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// ErrChatDisconnected is returned by TwitchChat.Post while the IRC client is
// not connected.
var ErrChatDisconnected = errors.New("twitch chat not connected")

type ircClient interface {
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
	OnConnect(func())
}

// TwitchChat announces into a Twitch channel's chat over IRC. It needs a bot
// user OAuth token with chat:edit; app tokens are rejected by Twitch IRC.
type TwitchChat struct {
	channel   string
	client    ircClient
	connected atomic.Bool

	// ReconnectDelay is the pause between connection attempts in Run.
	ReconnectDelay time.Duration
}

// NewTwitchChat returns a chat poster for channel, authenticating as username.
func NewTwitchChat(username, oauthToken, channel string) (*TwitchChat, error) {
	if username == "" || oauthToken == "" || channel == "" {
		return nil, fmt.Errorf("twitch chat: %w: bot username, oauth token and channel are required", ErrNotConfigured)
	}
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	return newTwitchChat(twitch.NewClient(username, oauthToken), channel), nil
}

func newTwitchChat(c ircClient, channel string) *TwitchChat {
	tc := &TwitchChat{
		channel:        strings.ToLower(strings.TrimPrefix(channel, "#")),
		client:         c,
		ReconnectDelay: 10 * time.Second,
	}
	c.OnConnect(func() {
		tc.connected.Store(true)
		slog.Info("twitch chat connected", slog.String("component", "twitch_chat"), slog.String("channel", tc.channel))
	})
	return tc
}

// Connected reports whether the IRC session is up.
func (t *TwitchChat) Connected() bool { return t.connected.Load() }

// Run keeps the IRC connection open until ctx is cancelled.
func (t *TwitchChat) Run(ctx context.Context) {
	log := slog.Default().With(slog.String("component", "twitch_chat"))
	go func() {
		<-ctx.Done()
		if err := t.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			log.Warn("twitch chat disconnect", slog.Any("err", err))
		}
	}()

	t.client.Join(t.channel)
	for {
		err := t.client.Connect()
		t.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		log.Warn("twitch chat connection lost", slog.Any("err", err), slog.Duration("retry_in", t.ReconnectDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.ReconnectDelay):
		}
	}
}

// Post says text in the channel. IRC has no multi-line messages, so runs of
// whitespace including line breaks collapse to one space. IRC gives no
// message id; the id is "".
func (t *TwitchChat) Post(_ context.Context, text string) (string, error) {
	line := strings.Join(strings.Fields(text), " ")
	if line == "" {
		return "", errors.New("twitch chat: empty text")
	}
	if !t.connected.Load() {
		return "", ErrChatDisconnected
	}
	t.client.Say(t.channel, line)
	return "", nil
}
