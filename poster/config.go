package poster

import (
	"fmt"
	"sort"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/config"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
)

// Destination names, used in logs, metrics and the CLI.
const (
	NameX          = "x"
	NameThreads    = "threads"
	NameDiscord    = "discord"
	NameTwitchChat = "twitch_chat"
)

// Set is the collection of destinations cfg enables.
type Set struct {
	Destinations []notify.Destination
	// Chat needs Run to hold its IRC connection; nil when disabled or in dry run.
	Chat *TwitchChat
}

// Names returns the destination names in order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.Destinations))
	for _, d := range s.Destinations {
		out = append(out, d.Name)
	}
	return out
}

// Lookup returns the named destination.
func (s *Set) Lookup(name string) (notify.Destination, bool) {
	for _, d := range s.Destinations {
		if d.Name == name {
			return d, true
		}
	}
	return notify.Destination{}, false
}

// FromConfig builds a destination for every credential set in cfg. In dry run
// every destination with a template logs instead of posting, credentials or
// not.
func FromConfig(cfg *config.Config) (*Set, error) {
	set := &Set{}
	add := func(name string, p notify.Poster, twitchTmpl, youtubeTmpl string) {
		tmpl := map[dedup.Platform]string{}
		if twitchTmpl != "" {
			tmpl[dedup.Twitch] = twitchTmpl
		}
		if youtubeTmpl != "" {
			tmpl[dedup.YouTube] = youtubeTmpl
		}
		if len(tmpl) == 0 {
			return
		}
		if cfg.DryRun {
			p = Noop{Name: name}
		}
		set.Destinations = append(set.Destinations, notify.Destination{Name: name, Poster: p, Templates: tmpl})
	}
	t := cfg.Templates

	if cfg.TwitterEnabled() || cfg.DryRun {
		var p notify.Poster
		if cfg.TwitterEnabled() {
			tw, err := NewTwitter(TwitterCredentials{
				APIKey:            cfg.TwitterAPIKey,
				APISecret:         cfg.TwitterAPISecret,
				AccessToken:       cfg.TwitterAccessToken,
				AccessTokenSecret: cfg.TwitterAccessTokenSecret,
			})
			if err != nil {
				return nil, err
			}
			p = tw
		}
		add(NameX, p, t.TwitchX, t.YouTubeX)
	}

	if cfg.ThreadsEnabled() || cfg.DryRun {
		var p notify.Poster
		if cfg.ThreadsEnabled() {
			th, err := NewThreads(cfg.ThreadsAccessToken, cfg.ThreadsUserID)
			if err != nil {
				return nil, err
			}
			p = th
		}
		add(NameThreads, p, t.TwitchThreads, t.YouTubeThreads)
	}

	if cfg.DiscordEnabled() || cfg.DryRun {
		var p notify.Poster
		if cfg.DiscordEnabled() {
			dc, err := NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID)
			if err != nil {
				return nil, err
			}
			p = dc
		}
		add(NameDiscord, p, t.TwitchDiscord, t.YouTubeDiscord)
	}

	if cfg.TwitchChatEnabled() || cfg.DryRun {
		var p notify.Poster
		if cfg.TwitchChatEnabled() && !cfg.DryRun {
			tc, err := NewTwitchChat(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChatChannel)
			if err != nil {
				return nil, err
			}
			set.Chat = tc
			p = tc
		}
		add(NameTwitchChat, p, t.TwitchChat, t.YouTubeChat)
	}

	return set, nil
}

// Destination is Lookup with an error listing the configured names.
func (s *Set) Destination(name string) (notify.Destination, error) {
	if d, ok := s.Lookup(name); ok {
		return d, nil
	}
	names := s.Names()
	sort.Strings(names)
	return notify.Destination{}, fmt.Errorf("destination %q is not configured (configured: %v)", name, names)
}
