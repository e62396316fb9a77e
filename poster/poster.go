// Package poster holds the announcement destinations: X, Threads, Discord and
// Twitch chat. Each type satisfies notify.Poster.
package poster

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sentinel errors shared by the HTTP-backed posters. Callers use errors.Is to
// print operator hints.
var (
	ErrUnauthorized  = errors.New("credentials rejected")
	ErrForbidden     = errors.New("permission denied")
	ErrRateLimited   = errors.New("rate limited")
	ErrNotConfigured = errors.New("destination not configured")
)

// APIError is a non-success response from a destination API.
type APIError struct {
	Destination string
	StatusCode  int
	Body        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api: status %d: %s", e.Destination, e.StatusCode, e.Body)
}

// Unwrap maps well-known status codes onto the sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// Hint returns operator guidance for err, or "" when none applies.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "make sure the app has Read and Write permissions"
	case errors.Is(err, ErrUnauthorized):
		return "check the API credentials"
	case errors.Is(err, ErrRateLimited):
		return "rate limit reached; the post was not retried"
	}
	return ""
}

func apiError(dest string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Destination: dest, StatusCode: resp.StatusCode, Body: string(b)}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

func httpClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return defaultHTTPClient
}

// defaultHTTPClient is used by posters without an HTTPClient.
var defaultHTTPClient = &http.Client{Timeout: 20 * time.Second}
