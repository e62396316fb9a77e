// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Claims           *prometheus.CounterVec // platform, result=claimed|suppressed
	Posts            *prometheus.CounterVec // destination, result=ok|error
	YouTubePolls     *prometheus.CounterVec // result=live|offline|error
	EventSubMessages *prometheus.CounterVec // transport, type

	// Histograms (seconds)
	PostDuration *prometheus.HistogramVec // destination

	// Gauges
	DedupEntries      *prometheus.GaugeVec // platform
	EventSubConnected prometheus.Gauge     // 1=connected,0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Claims = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_claims_total", Help: "Occurrence claims by platform and result"}, []string{"platform", "result"})
		Posts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_posts_total", Help: "Announcement posts by destination and result"}, []string{"destination", "result"})
		YouTubePolls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_youtube_polls_total", Help: "YouTube channel checks by result"}, []string{"result"})
		EventSubMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_eventsub_messages_total", Help: "EventSub messages received by transport and message type"}, []string{"transport", "type"})
		PostDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "relay_post_duration_seconds", Help: "Announcement post duration seconds", Buckets: prometheus.DefBuckets}, []string{"destination"})
		DedupEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_dedup_entries", Help: "Occurrence keys currently recorded per platform"}, []string{"platform"})
		EventSubConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_eventsub_connected", Help: "EventSub websocket connected=1 disconnected=0"})
	})
}

// ObserveClaim records the outcome of a dedup claim.
func ObserveClaim(platform string, claimed bool) {
	if Claims == nil {
		return
	}
	result := "suppressed"
	if claimed {
		result = "claimed"
	}
	Claims.WithLabelValues(platform, result).Inc()
}

// ObservePost records a post attempt and its duration.
func ObservePost(destination string, err error, d time.Duration) {
	if Posts == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	Posts.WithLabelValues(destination, result).Inc()
	PostDuration.WithLabelValues(destination).Observe(d.Seconds())
}

// ObservePoll records one YouTube channel check.
func ObservePoll(result string) {
	if YouTubePolls != nil {
		YouTubePolls.WithLabelValues(result).Inc()
	}
}

// ObserveEventSub records one EventSub message.
func ObserveEventSub(transport, msgType string) {
	if EventSubMessages != nil {
		EventSubMessages.WithLabelValues(transport, msgType).Inc()
	}
}

// SetDedupEntries records the current size of a platform's record set.
func SetDedupEntries(platform string, n int) {
	if DedupEntries != nil {
		DedupEntries.WithLabelValues(platform).Set(float64(n))
	}
}

// SetEventSubConnected sets gauge to 1 if connected else 0.
func SetEventSubConnected(connected bool) {
	if EventSubConnected == nil {
		return
	}
	if connected {
		EventSubConnected.Set(1)
	} else {
		EventSubConnected.Set(0)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
