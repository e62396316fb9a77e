// Package youtubeapi answers one question for the YouTube poller: is this
// channel live right now, and if so with which video. Two detectors are
// provided: one reads the channel's public /live page, the other uses the
// YouTube Data API when an API key is configured.
package youtubeapi

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// LiveVideo describes a live broadcast found on a channel.
type LiveVideo struct {
	VideoID     string
	ChannelName string
	Title       string
}

// Detector reports whether a channel is live. ok=false with a nil error means
// the channel is offline or showing a non-live video.
type Detector interface {
	Live(ctx context.Context, channel string) (LiveVideo, bool, error)
}

// DefaultTitle is used when a live page carries no title.
const DefaultTitle = "Live Stream"

// APIDetector queries search.list with eventType=live. Each call costs 100
// quota units, so it suits few channels or long intervals.
type APIDetector struct {
	svc *yt.Service
}

// NewAPIDetector builds a Data API detector. opts are appended after the API
// key, so tests can pass option.WithEndpoint.
func NewAPIDetector(ctx context.Context, apiKey string, opts ...option.ClientOption) (*APIDetector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key empty")
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &APIDetector{svc: svc}, nil
}

// Live implements Detector. channel must be a channel id (UC...); handles are
// not accepted by search.list.
func (d *APIDetector) Live(ctx context.Context, channel string) (LiveVideo, bool, error) {
	if strings.HasPrefix(channel, "@") {
		return LiveVideo{}, false, fmt.Errorf("youtube api detector needs a channel id, got handle %s", channel)
	}
	resp, err := d.svc.Search.List([]string{"id", "snippet"}).
		ChannelId(channel).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return LiveVideo{}, false, fmt.Errorf("youtube search %s: %w", channel, err)
	}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := LiveVideo{VideoID: item.Id.VideoId, ChannelName: channel, Title: DefaultTitle}
		if item.Snippet != nil {
			if item.Snippet.ChannelTitle != "" {
				v.ChannelName = item.Snippet.ChannelTitle
			}
			if item.Snippet.Title != "" {
				v.Title = item.Snippet.Title
			}
		}
		return v, true, nil
	}
	return LiveVideo{}, false, nil
}
