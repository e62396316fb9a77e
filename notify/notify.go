// Package notify implements the pipeline every watcher hands detections to:
// claim the occurrence with the Deduplicator, render each destination's
// template, and post the result.
//
// A claim is taken before anything is posted and is never released, so a
// failed post is not retried and a re-detected occurrence is not announced a
// second time.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/message"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/telemetry"
)

// Occurrence identifies one live-stream session on one platform.
type Occurrence struct {
	Platform dedup.Platform
	Channel  string
	Key      string
}

// Poster publishes announcement text and returns the id of the created post.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// Destination is one place announcements go to. A destination without a
// template for a platform is skipped for that platform's occurrences.
type Destination struct {
	Name      string
	Poster    Poster
	Templates map[dedup.Platform]string
}

// Delivery is the outcome of posting to one destination.
type Delivery struct {
	Destination string
	Text        string
	PostID      string
	Err         error
}

// Result describes what Announce did.
type Result struct {
	Claimed    bool
	Deliveries []Delivery
}

// DefaultPostTimeout bounds a single destination's post.
const DefaultPostTimeout = 30 * time.Second

// Relay wires the Deduplicator to the configured destinations.
type Relay struct {
	// PostTimeout overrides DefaultPostTimeout.
	PostTimeout time.Duration

	dedup        *dedup.Deduplicator
	destinations []Destination
}

// NewRelay returns a Relay that posts to destinations in the order given.
func NewRelay(d *dedup.Deduplicator, destinations ...Destination) *Relay {
	return &Relay{dedup: d, destinations: destinations}
}

// Announce claims occ and, if this is the first detection, posts the rendered
// message to every destination with a template for occ.Platform. Destinations
// are posted concurrently. Posting errors are joined and returned; the claim
// stays in place either way.
func (r *Relay) Announce(ctx context.Context, occ Occurrence, vars message.Context) (Result, error) {
	if occ.Key == "" {
		return Result{}, fmt.Errorf("announce %s/%s: empty occurrence key", occ.Platform, occ.Channel)
	}
	if telemetry.GetCorrelation(ctx) == "" {
		ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	}
	log := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "relay"),
		slog.String("platform", string(occ.Platform)),
		slog.String("channel", occ.Channel),
		slog.String("key", occ.Key),
	)

	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.announce",
		telemetry.PlatformAttr(string(occ.Platform)),
		telemetry.ChannelAttr(occ.Channel),
		telemetry.OccurrenceAttr(occ.Key),
	)
	defer span.End()

	claimed := r.dedup.TryClaim(occ.Platform, occ.Key)
	telemetry.ObserveClaim(string(occ.Platform), claimed)
	telemetry.SetDedupEntries(string(occ.Platform), r.dedup.Len(occ.Platform))
	if !claimed {
		log.Debug("occurrence already announced; suppressing")
		return Result{}, nil
	}
	log.Info("announcing live stream")

	var targets []Delivery
	var posters []Poster
	for _, d := range r.destinations {
		tmpl, ok := d.Templates[occ.Platform]
		if !ok || tmpl == "" || d.Poster == nil {
			continue
		}
		targets = append(targets, Delivery{Destination: d.Name, Text: message.Render(tmpl, vars)})
		posters = append(posters, d.Poster)
	}
	if len(targets) == 0 {
		log.Warn("no destination configured for platform")
		return Result{Claimed: true}, nil
	}

	// Posts outlive the caller's cancellation so a claimed occurrence is not
	// dropped half-announced at shutdown, but never beyond the post timeout.
	timeout := r.PostTimeout
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(postCtx)
	for i := range targets {
		g.Go(func() error {
			targets[i].PostID, targets[i].Err = post(gctx, targets[i].Destination, posters[i], targets[i].Text)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, t := range targets {
		if t.Err != nil {
			log.Error("post failed", slog.String("destination", t.Destination), slog.Any("err", t.Err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Destination, t.Err))
			continue
		}
		log.Info("posted", slog.String("destination", t.Destination), slog.String("post_id", t.PostID))
	}
	err := errors.Join(errs...)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	return Result{Claimed: true, Deliveries: targets}, err
}

func post(ctx context.Context, name string, p Poster, text string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay", "relay.post", telemetry.DestinationAttr(name))
	defer span.End()
	start := time.Now()
	id, err := p.Post(ctx, text)
	telemetry.ObservePost(name, err, time.Since(start))
	telemetry.RecordError(span, err)
	return id, err
}
