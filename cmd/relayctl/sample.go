package main

import (
	"fmt"
	"strings"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/config"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/message"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/notify"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/poster"
)

// Character limits per destination.
var limits = map[string]int{
	poster.NameX:          280,
	poster.NameThreads:    500,
	poster.NameDiscord:    2000,
	poster.NameTwitchChat: 500,
}

const (
	sampleTitle   = "Example stream title"
	sampleGame    = "Just Chatting"
	sampleVideoID = "dQw4w9WgXcQ"
)

// sampleContext fills placeholders for the first configured channel of
// platform, or a made-up one.
func sampleContext(cfg *config.Config, platform dedup.Platform) message.Context {
	switch platform {
	case dedup.YouTube:
		channel := "Example Channel"
		index := -1
		if len(cfg.YouTubeChannels) > 0 {
			index = 0
		}
		display, fan := cfg.StreamerNames(index, channel)
		return notify.BuildContext(notify.Details{
			Channel: channel, DisplayName: display, FanName: fan, Title: sampleTitle, VideoID: sampleVideoID,
		})
	default:
		channel := "examplechannel"
		if len(cfg.TwitchChannels) > 0 {
			channel = cfg.TwitchChannels[0]
		}
		display, fan := cfg.StreamerNames(cfg.TwitchIndex(channel), channel)
		return notify.BuildContext(notify.Details{
			Channel: channel, DisplayName: display, FanName: fan, Title: sampleTitle, Game: sampleGame,
		})
	}
}

func parsePlatform(v string) ([]dedup.Platform, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "all":
		return []dedup.Platform{dedup.Twitch, dedup.YouTube}, nil
	case string(dedup.Twitch):
		return []dedup.Platform{dedup.Twitch}, nil
	case string(dedup.YouTube):
		return []dedup.Platform{dedup.YouTube}, nil
	}
	return nil, fmt.Errorf("unknown platform %q: want twitch, youtube or all", v)
}
