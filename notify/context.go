package notify

import "github.com/kevinwang1011/twitter-twitch-notification-bot/message"

// DefaultFanName is used when no fan name is configured for a streamer.
const DefaultFanName = "fans"

// Details is what a watcher knows about a detected stream.
type Details struct {
	Channel     string
	DisplayName string
	FanName     string
	Title       string
	Game        string
	VideoID     string
}

// BuildContext turns d into template values. channel, title, display_name
// and fanname are always present; game and video_id only when known, so a
// template that asks for them on the wrong platform shows the raw token.
func BuildContext(d Details) message.Context {
	ctx := message.Context{
		message.Channel:     d.Channel,
		message.Title:       d.Title,
		message.DisplayName: d.DisplayName,
		message.FanName:     d.FanName,
	}
	if d.DisplayName == "" {
		ctx[message.DisplayName] = d.Channel
	}
	if d.FanName == "" {
		ctx[message.FanName] = DefaultFanName
	}
	if d.Game != "" {
		ctx[message.Game] = d.Game
	}
	if d.VideoID != "" {
		ctx[message.VideoID] = d.VideoID
	}
	return ctx
}
