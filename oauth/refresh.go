package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// RefreshNow exchanges provider's stored refresh token for a new token and
// stores the result.
func RefreshNow(ctx context.Context, store *Store, provider string, fn RefreshFunc) error {
	cur, _ := store.Get(provider)
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	at, rt, exp, scope, err := fn(ctx2, cur.RefreshToken)
	if err != nil {
		return err
	}
	store.Set(provider, Token{AccessToken: at, RefreshToken: rt, Expiry: exp, Scope: scope})
	return nil
}

// StartRefresher launches a goroutine that periodically checks provider's token and refreshes it.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store *Store, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	go func() {
		for {
			// Add per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			nextSleep := interval
			if jitterRange > 0 {
				//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
				nextSleep += time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			tok, ok := store.Get(provider)
			if !ok || tok.RefreshToken == "" {
				continue
			}
			// If still outside window skip quickly
			if !tok.Expiry.IsZero() && time.Until(tok.Expiry) > window {
				continue
			}
			if err := RefreshNow(ctx, store, provider, fn); err != nil {
				slog.Warn("token refresh failed", slog.String("provider", provider), slog.Any("err", err))
				continue
			}
			slog.Info("token refreshed", slog.String("provider", provider))
		}
	}()
}
