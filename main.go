// Command twitter-twitch-notification-bot announces live streams.
// It:
//   - Loads configuration (environment, optional .env and TOML file) and
//     initializes structured logging.
//   - Watches Twitch channels through EventSub (WebSocket or webhook) and
//     polls YouTube channels for live broadcasts.
//   - Claims each broadcast once and posts the rendered announcement to X,
//     Threads, Discord and Twitch chat.
//   - Exposes /healthz, /readyz, /status, /metrics, the EventSub webhook
//     callback and the Twitch authorization endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/config"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/oauth"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/poster"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/server"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/twitchapi"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/watcher"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/youtubeapi"
)

var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("twitter-twitch-notification-bot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("relay stopped", slog.Any("err", err))
		shutdown()
		os.Exit(1)
	}
	slog.Info("shutting down")
}

func run(ctx context.Context, cfg *config.Config) error {
	var dedupOpts []dedup.Option
	if cfg.DedupMaxEntries > 0 {
		dedupOpts = append(dedupOpts, dedup.WithMaxEntries(cfg.DedupMaxEntries))
	}
	d := dedup.New(dedupOpts...)
	if len(cfg.YouTubeScheduledStreams) > 0 {
		d.Seed(dedup.YouTube, cfg.YouTubeScheduledStreams...)
		slog.Info("scheduled youtube streams will not be announced", slog.Any("video_ids", cfg.YouTubeScheduledStreams))
	}

	set, err := poster.FromConfig(cfg)
	if err != nil {
		return err
	}
	if len(set.Destinations) == 0 {
		return errors.New("no destination has a template")
	}
	relay := notify.NewRelay(d, set.Destinations...)
	slog.Info("destinations configured", slog.Any("destinations", set.Names()), slog.Bool("dry_run", cfg.DryRun))

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	defer func() { _ = ln.Close() }()

	tokens := oauth.NewStore()
	opts := server.Options{Tokens: tokens}
	g, ctx := errgroup.WithContext(ctx)

	var (
		tw      *watcher.Twitch
		webhook *twitchapi.WebhookHandler
	)
	if len(cfg.TwitchChannels) > 0 {
		helixClient := &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
		tw = watcher.NewTwitch(helixClient, relay, func(channel, fallback string) (string, string) {
			return cfg.StreamerNames(cfg.TwitchIndex(channel), fallback)
		})
		resolveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := tw.Resolve(resolveCtx, cfg.TwitchChannels)
		cancel()
		if err != nil {
			return err
		}

		switch cfg.EventSubTransport {
		case config.TransportWebhook:
			webhook = twitchapi.NewWebhookHandler(ctx, cfg.WebhookSecret, tw.HandleStreamOnline)
			opts.Webhook = webhook
		default:
			auth := twitchapi.NewUserAuth(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI)
			opts.Auth = auth
			if cfg.TwitchUserRefreshToken != "" {
				tokens.Set(twitchapi.Provider, oauth.Token{RefreshToken: cfg.TwitchUserRefreshToken})
				if err := oauth.RefreshNow(ctx, tokens, twitchapi.Provider, auth.Refresh); err != nil {
					slog.Warn("twitch user token refresh failed; authorize at /auth/twitch/start", slog.Any("err", err))
				}
			}
			oauth.StartRefresher(ctx, tokens, twitchapi.Provider, 5*time.Minute, 15*time.Minute, auth.Refresh)
			opts.Checks = append(opts.Checks, server.Check{Name: "twitch_user_token", Fn: func(context.Context) error {
				if tok, ok := tokens.Get(twitchapi.Provider); !ok || !tok.Valid() {
					return errors.New("twitch user token missing or expired")
				}
				return nil
			}})
			g.Go(func() error { return tw.RunWebSocket(ctx, cfg.EventSubURL, tokens) })
		}
	}

	if len(cfg.YouTubeChannels) > 0 {
		det, err := youtubeDetector(ctx, cfg)
		if err != nil {
			return err
		}
		yt := &watcher.YouTube{
			Detector: det,
			Relay:    relay,
			Channels: cfg.YouTubeChannels,
			Interval: cfg.YouTubeCheckInterval,
			Names: func(channel, fallback string) (string, string) {
				return cfg.StreamerNames(cfg.YouTubeIndex(channel), fallback)
			},
		}
		g.Go(func() error { return yt.Run(ctx) })
	}

	if set.Chat != nil {
		opts.Checks = append(opts.Checks, server.Check{Name: "twitch_chat", Fn: func(context.Context) error {
			if !set.Chat.Connected() {
				return errors.New("twitch chat not connected")
			}
			return nil
		}})
		g.Go(func() error {
			set.Chat.Run(ctx)
			return nil
		})
	}

	opts.Status = func(context.Context) any {
		return status(cfg, set, d, tokens)
	}

	// Serve before subscribing: Twitch verifies a webhook callback as soon
	// as the subscription is created.
	g.Go(func() error { return server.Serve(ctx, ln, server.NewMux(ctx, opts)) })

	if webhook != nil {
		g.Go(func() error {
			if err := tw.SubscribeWebhook(ctx, cfg.WebhookCallback, cfg.WebhookSecret); err != nil {
				slog.Error("eventsub webhook subscription failed", slog.Any("err", err))
			}
			return nil
		})
	}

	err = g.Wait()
	if webhook != nil {
		webhook.Wait()
	}
	return err
}

func youtubeDetector(ctx context.Context, cfg *config.Config) (youtubeapi.Detector, error) {
	if cfg.YouTubeAPIKey == "" {
		slog.Info("youtube live detection via channel page")
		return &youtubeapi.ScrapeDetector{}, nil
	}
	slog.Info("youtube live detection via Data API")
	return youtubeapi.NewAPIDetector(ctx, cfg.YouTubeAPIKey)
}

func status(cfg *config.Config, set *poster.Set, d *dedup.Deduplicator, tokens *oauth.Store) map[string]any {
	out := map[string]any{
		"version":          version,
		"dry_run":          cfg.DryRun,
		"tracing":          telemetry.IsTracingEnabled(),
		"destinations":     set.Names(),
		"twitch_channels":  cfg.TwitchChannels,
		"youtube_channels": cfg.YouTubeChannels,
		"recorded_occurrences": map[string]int{
			string(dedup.Twitch):  d.Len(dedup.Twitch),
			string(dedup.YouTube): d.Len(dedup.YouTube),
		},
	}
	if len(cfg.TwitchChannels) > 0 {
		out["eventsub_transport"] = cfg.EventSubTransport
	}
	if tok, ok := tokens.Get(twitchapi.Provider); ok {
		out["twitch_user_token"] = map[string]any{"valid": tok.Valid(), "expiry": tok.Expiry}
	}
	if set.Chat != nil {
		out["twitch_chat_connected"] = set.Chat.Connected()
	}
	return out
}
