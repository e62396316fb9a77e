package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/youtubeapi"
)

// YouTube polls channels for live broadcasts. Scheduled streams are kept out
// by seeding the Deduplicator before Run.
type YouTube struct {
	Detector youtubeapi.Detector
	Relay    Announcer
	Channels []string
	Interval time.Duration
	Names    NameFunc
}

// Run checks every channel immediately and then once per Interval until ctx
// ends.
func (y *YouTube) Run(ctx context.Context) error {
	log := slog.Default().With(slog.String("component", "youtube_watcher"))
	if len(y.Channels) == 0 {
		log.Info("no youtube channels configured; poller idle")
		return nil
	}
	interval := y.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info("youtube poller started", slog.Int("channels", len(y.Channels)), slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		y.CheckAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// CheckAll checks each channel once, in order.
func (y *YouTube) CheckAll(ctx context.Context) {
	for _, ch := range y.Channels {
		if ctx.Err() != nil {
			return
		}
		y.check(ctx, ch)
	}
}

func (y *YouTube) check(ctx context.Context, channel string) {
	log := slog.Default().With(slog.String("component", "youtube_watcher"), slog.String("channel", channel))
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	v, live, err := y.Detector.Live(checkCtx, channel)
	cancel()
	switch {
	case err != nil:
		telemetry.ObservePoll("error")
		log.Warn("youtube check failed", slog.Any("err", err))
		return
	case !live:
		telemetry.ObservePoll("offline")
		return
	}
	telemetry.ObservePoll("live")

	channelName := v.ChannelName
	if channelName == "" {
		channelName = channel
	}
	display, fan := names(y.Names, channel, channelName)
	announce(ctx, log.With(slog.String("video_id", v.VideoID)), y.Relay,
		notify.Occurrence{Platform: dedup.YouTube, Channel: channel, Key: v.VideoID},
		notify.Details{Channel: channelName, DisplayName: display, FanName: fan, Title: v.Title, VideoID: v.VideoID},
	)
}
