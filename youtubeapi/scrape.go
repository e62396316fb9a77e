package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxPageBytes     = 8 << 20
)

var (
	watchURLRe  = regexp.MustCompile(`watch\?v=([a-zA-Z0-9_-]{11})`)
	videoIDRe   = regexp.MustCompile(`"videoId":"([a-zA-Z0-9_-]{11})"`)
	ownerNameRe = regexp.MustCompile(`"ownerChannelName":"((?:[^"\\]|\\.)+)"`)
	titleRe     = regexp.MustCompile(`"title":"((?:[^"\\]|\\.)+)"`)
)

const playableMarker = `"playabilityStatus":{"status":"OK"`

// ScrapeDetector reads https://www.youtube.com/channel/{id}/live, which
// redirects to or embeds the current broadcast when the channel is live. It
// needs no credentials.
type ScrapeDetector struct {
	BaseURL    string
	HTTPClient *http.Client
}

// ChannelURL returns the /live page for a channel id or @handle.
func (d *ScrapeDetector) ChannelURL(channel string) string {
	base := d.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if strings.HasPrefix(channel, "@") {
		return base + "/" + url.PathEscape(channel) + "/live"
	}
	return base + "/channel/" + url.PathEscape(channel) + "/live"
}

// Live implements Detector.
func (d *ScrapeDetector) Live(ctx context.Context, channel string) (LiveVideo, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.ChannelURL(channel), nil)
	if err != nil {
		return LiveVideo{}, false, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	hc := d.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return LiveVideo{}, false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return LiveVideo{}, false, fmt.Errorf("youtube live page %s: %s", channel, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return LiveVideo{}, false, err
	}
	return parseLivePage(channel, resp.Request.URL.String(), string(body))
}

// parseLivePage extracts the live video from a fetched /live page. finalURL is
// the URL after redirects.
func parseLivePage(channel, finalURL, html string) (LiveVideo, bool, error) {
	m := watchURLRe.FindStringSubmatch(finalURL)
	if m == nil {
		m = videoIDRe.FindStringSubmatch(html)
	}
	if m == nil {
		return LiveVideo{}, false, nil
	}
	v := LiveVideo{
		VideoID:     m[1],
		ChannelName: firstJSONString(ownerNameRe, html, channel),
		Title:       firstJSONString(titleRe, html, DefaultTitle),
	}
	// Upcoming and ended broadcasts are not playable.
	if !strings.Contains(html, playableMarker) {
		slog.Debug("youtube video is not live", slog.String("channel", channel), slog.String("video_id", v.VideoID), slog.String("title", v.Title))
		return LiveVideo{}, false, nil
	}
	return v, true, nil
}

// firstJSONString returns the first match of re decoded as a JSON string
// literal, or fallback.
func firstJSONString(re *regexp.Regexp, html, fallback string) string {
	m := re.FindStringSubmatch(html)
	if m == nil {
		return fallback
	}
	var s string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err != nil || s == "" {
		return m[1]
	}
	return s
}
