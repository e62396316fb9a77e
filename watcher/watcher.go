// Package watcher turns platform signals into Relay announcements: Twitch
// stream.online events (EventSub over WebSocket or webhook) and periodic
// YouTube live checks.
package watcher

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/message"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/poster"
)

// Announcer is the pipeline a watcher hands detections to.
type Announcer interface {
	Announce(ctx context.Context, occ notify.Occurrence, vars message.Context) (notify.Result, error)
}

// NameFunc returns the configured display name and fan name for channel.
// fallback is the display name to use when none is configured.
type NameFunc func(channel, fallback string) (displayName, fanName string)

func names(fn NameFunc, channel, fallback string) (string, string) {
	if fn == nil {
		return fallback, notify.DefaultFanName
	}
	return fn(channel, fallback)
}

// announce runs the relay and logs the outcome at the watcher boundary.
func announce(ctx context.Context, log *slog.Logger, a Announcer, occ notify.Occurrence, d notify.Details) {
	res, err := a.Announce(ctx, occ, notify.BuildContext(d))
	if err != nil {
		attrs := []any{slog.String("key", occ.Key), slog.Any("err", err)}
		for _, del := range res.Deliveries {
			if hint := poster.Hint(del.Err); hint != "" {
				attrs = append(attrs, slog.String(del.Destination+"_hint", hint))
			}
		}
		if errors.Is(err, context.Canceled) {
			log.Warn("announcement interrupted", attrs...)
			return
		}
		log.Error("announcement failed", attrs...)
		return
	}
	if res.Claimed {
		log.Info("live stream announced", slog.String("key", occ.Key), slog.Int("destinations", len(res.Deliveries)))
	}
}
