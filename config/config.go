// Package config loads environment variables and provides a typed Config used across the service.
// Values may also come from a TOML file named by CONFIG_FILE; the environment always wins.
// Load never fails on missing credentials; call Validate before starting watchers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EventSub transports.
const (
	TransportWebSocket = "websocket"
	TransportWebhook   = "webhook"
)

// Default announcement templates. `\n` is expanded when rendered.
const (
	DefaultTwitchTemplate  = `{display_name} is now live on Twitch! 🎮\n\n📺 {title}\n🎯 Playing: {game}\n\n👉 https://twitch.tv/{channel}`
	DefaultYouTubeTemplate = `{display_name} is now live on YouTube! 🔴\n\n📺 {title}\n\n👉 https://youtube.com/watch?v={video_id}`
)

// Templates holds one template per destination per platform. An empty
// template disables that destination for that platform.
type Templates struct {
	TwitchX        string
	YouTubeX       string
	TwitchThreads  string
	YouTubeThreads string
	TwitchDiscord  string
	YouTubeDiscord string
	TwitchChat     string
	YouTubeChat    string
}

type Config struct {
	// Twitch watcher
	TwitchClientID         string
	TwitchClientSecret     string
	TwitchChannels         []string
	EventSubTransport      string
	EventSubURL            string
	WebhookCallback        string
	WebhookSecret          string
	TwitchRedirectURI      string
	TwitchUserRefreshToken string

	// YouTube watcher
	YouTubeChannels         []string
	YouTubeScheduledStreams []string
	YouTubeCheckInterval    time.Duration
	YouTubeAPIKey           string

	// Per-streamer names, indexed by position in TwitchChannels / YouTubeChannels.
	FanNames     []string
	DisplayNames []string

	Templates Templates

	// X
	TwitterAPIKey            string
	TwitterAPISecret         string
	TwitterAccessToken       string
	TwitterAccessTokenSecret string

	// Threads
	ThreadsAccessToken string
	ThreadsUserID      string

	// Discord
	DiscordBotToken  string
	DiscordChannelID string

	// Twitch chat
	TwitchBotUsername string
	TwitchOAuthToken  string
	TwitchChatChannel string

	DedupMaxEntries int
	HTTPAddr        string
	DryRun          bool
}

// source resolves a variable from the environment, then the config file.
type source struct {
	file map[string]any
}

func (s source) get(name string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	v, ok := s.file[name]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func (s source) getDefault(name, def string) string {
	if v := s.get(name); v != "" {
		return v
	}
	return def
}

// Load reads environment variables and applies defaults. When CONFIG_FILE
// points at a TOML file, its top-level keys (named like the environment
// variables) fill in whatever the environment leaves unset.
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{}

	// Twitch
	cfg.TwitchClientID = src.get("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = src.get("TWITCH_CLIENT_SECRET")
	cfg.TwitchChannels = lowerAll(SplitList(src.get("TWITCH_CHANNELS")))
	cfg.EventSubTransport = strings.ToLower(src.getDefault("TWITCH_EVENTSUB_TRANSPORT", TransportWebSocket))
	cfg.EventSubURL = src.getDefault("TWITCH_EVENTSUB_URL", "wss://eventsub.wss.twitch.tv/ws")
	cfg.WebhookCallback = src.get("TWITCH_WEBHOOK_CALLBACK")
	cfg.WebhookSecret = src.get("TWITCH_WEBHOOK_SECRET")
	cfg.TwitchRedirectURI = src.getDefault("TWITCH_REDIRECT_URI", "http://localhost:8080/auth/twitch/callback")
	cfg.TwitchUserRefreshToken = src.get("TWITCH_USER_REFRESH_TOKEN")

	// YouTube
	cfg.YouTubeChannels = SplitList(src.get("YOUTUBE_CHANNELS"))
	cfg.YouTubeScheduledStreams = SplitList(src.get("YOUTUBE_SCHEDULED_STREAMS"))
	cfg.YouTubeAPIKey = src.get("YOUTUBE_API_KEY")
	interval, err := parseInterval(src.getDefault("YOUTUBE_CHECK_INTERVAL", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid YOUTUBE_CHECK_INTERVAL: %w", err)
	}
	cfg.YouTubeCheckInterval = interval

	cfg.FanNames = SplitList(src.get("FANNAMES"))
	cfg.DisplayNames = SplitList(src.get("DISPLAY_NAMES"))

	// Templates. The X templates are the base every other destination falls back to.
	t := &cfg.Templates
	t.TwitchX = src.getDefault("TWITCH_NOTIFICATION_TEMPLATE", src.getDefault("NOTIFICATION_TEMPLATE", DefaultTwitchTemplate))
	t.YouTubeX = src.getDefault("YOUTUBE_NOTIFICATION_TEMPLATE", DefaultYouTubeTemplate)
	t.TwitchThreads = src.get("TWITCH_THREADS_TEMPLATE")
	t.YouTubeThreads = src.get("YOUTUBE_THREADS_TEMPLATE")
	t.TwitchDiscord = src.getDefault("TWITCH_DISCORD_TEMPLATE", t.TwitchX)
	t.YouTubeDiscord = src.getDefault("YOUTUBE_DISCORD_TEMPLATE", t.YouTubeX)
	t.TwitchChat = src.getDefault("TWITCH_CHAT_TEMPLATE", t.TwitchX)
	t.YouTubeChat = src.getDefault("YOUTUBE_CHAT_TEMPLATE", t.YouTubeX)

	// Destinations
	cfg.TwitterAPIKey = src.get("TWITTER_API_KEY")
	cfg.TwitterAPISecret = src.get("TWITTER_API_SECRET")
	cfg.TwitterAccessToken = src.get("TWITTER_ACCESS_TOKEN")
	cfg.TwitterAccessTokenSecret = src.get("TWITTER_ACCESS_TOKEN_SECRET")
	cfg.ThreadsAccessToken = src.get("THREADS_ACCESS_TOKEN")
	cfg.ThreadsUserID = src.get("THREADS_USER_ID")
	cfg.DiscordBotToken = src.get("DISCORD_BOT_TOKEN")
	cfg.DiscordChannelID = src.get("DISCORD_CHANNEL_ID")
	cfg.TwitchBotUsername = src.get("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = src.get("TWITCH_OAUTH_TOKEN")
	cfg.TwitchChatChannel = strings.ToLower(strings.TrimPrefix(src.get("TWITCH_CHAT_CHANNEL"), "#"))

	if v := src.get("DEDUP_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid DEDUP_MAX_ENTRIES %q: want a non-negative integer", v)
		}
		cfg.DedupMaxEntries = n
	}
	cfg.HTTPAddr = src.getDefault("HTTP_ADDR", ":8080")
	if v := src.get("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DRY_RUN %q: %w", v, err)
		}
		cfg.DryRun = b
	}

	return cfg, nil
}

func loadFile(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var raw map[string]any
	if err := toml.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

// parseInterval accepts whole seconds ("60") or a Go duration ("90s", "2m").
func parseInterval(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%q must be positive", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%q must be positive", v)
	}
	return d, nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}

// StreamerNames returns the display name and fan name configured for the
// streamer at index. Missing entries fall back to fallback and "fans".
func (c *Config) StreamerNames(index int, fallback string) (displayName, fanName string) {
	displayName, fanName = fallback, "fans"
	if index >= 0 && index < len(c.DisplayNames) && c.DisplayNames[index] != "" {
		displayName = c.DisplayNames[index]
	}
	if index >= 0 && index < len(c.FanNames) && c.FanNames[index] != "" {
		fanName = c.FanNames[index]
	}
	return displayName, fanName
}

// TwitchIndex returns login's position in TwitchChannels, or -1.
func (c *Config) TwitchIndex(login string) int {
	return indexOf(c.TwitchChannels, strings.ToLower(login))
}

// YouTubeIndex returns channel's position in YouTubeChannels, or -1.
func (c *Config) YouTubeIndex(channel string) int {
	return indexOf(c.YouTubeChannels, channel)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// Destination presence helpers.
func (c *Config) TwitterEnabled() bool {
	return c.TwitterAPIKey != "" && c.TwitterAPISecret != "" && c.TwitterAccessToken != "" && c.TwitterAccessTokenSecret != ""
}
func (c *Config) ThreadsEnabled() bool { return c.ThreadsAccessToken != "" && c.ThreadsUserID != "" }
func (c *Config) DiscordEnabled() bool { return c.DiscordBotToken != "" && c.DiscordChannelID != "" }
func (c *Config) TwitchChatEnabled() bool {
	return c.TwitchBotUsername != "" && c.TwitchOAuthToken != "" && c.TwitchChatChannel != ""
}

// Validate checks the configuration is runnable: at least one watcher, at
// least one destination, and no half-configured credential set. Every
// problem is reported.
func (c *Config) Validate() error {
	var errs []error

	if len(c.TwitchChannels) == 0 && len(c.YouTubeChannels) == 0 {
		errs = append(errs, errors.New("no channels to watch: set TWITCH_CHANNELS and/or YOUTUBE_CHANNELS"))
	}
	if len(c.TwitchChannels) > 0 {
		if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
			errs = append(errs, errors.New("TWITCH_CHANNELS requires TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET"))
		}
		switch c.EventSubTransport {
		case TransportWebSocket:
		case TransportWebhook:
			if !strings.HasPrefix(c.WebhookCallback, "https://") {
				errs = append(errs, errors.New("webhook transport requires an https TWITCH_WEBHOOK_CALLBACK"))
			}
			if n := len(c.WebhookSecret); n < 10 || n > 100 {
				errs = append(errs, errors.New("TWITCH_WEBHOOK_SECRET must be 10-100 characters"))
			}
		default:
			errs = append(errs, fmt.Errorf("TWITCH_EVENTSUB_TRANSPORT %q: want websocket or webhook", c.EventSubTransport))
		}
	}

	partial := func(name string, vals ...string) {
		set := 0
		for _, v := range vals {
			if v != "" {
				set++
			}
		}
		if set > 0 && set < len(vals) {
			errs = append(errs, fmt.Errorf("%s credentials are incomplete", name))
		}
	}
	partial("X", c.TwitterAPIKey, c.TwitterAPISecret, c.TwitterAccessToken, c.TwitterAccessTokenSecret)
	partial("Threads", c.ThreadsAccessToken, c.ThreadsUserID)
	partial("Discord", c.DiscordBotToken, c.DiscordChannelID)
	partial("Twitch chat", c.TwitchBotUsername, c.TwitchOAuthToken, c.TwitchChatChannel)

	if !c.DryRun && !c.TwitterEnabled() && !c.ThreadsEnabled() && !c.DiscordEnabled() && !c.TwitchChatEnabled() {
		errs = append(errs, errors.New("no destination configured: set X, Threads, Discord or Twitch chat credentials (or DRY_RUN=true)"))
	}
	return errors.Join(errs...)
}
