// Package twitchapi wraps the Twitch Helix and EventSub APIs the relay needs:
// resolving broadcaster logins, looking up stream details, and receiving
// stream.online events over WebSocket or webhook.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nicklaw5/helix/v2"
)

// EventSub subscription type the relay listens to.
const StreamOnline = helix.EventSubTypeStreamOnline

// User is a resolved Twitch broadcaster.
type User struct {
	ID          string
	Login       string
	DisplayName string
}

// Stream is the subset of stream details used in announcements.
type Stream struct {
	ID       string
	UserID   string
	Title    string
	GameName string
}

// HelixClient calls Helix with an app access token from AppTokenSource.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// APIBaseURL overrides https://api.twitch.tv/helix.
	APIBaseURL string
}

// defaultHTTPClient is used when no HTTPClient is set.
var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

// client builds a helix client bound to ctx. Clients are per call: helix
// keeps the context and token on the client itself.
func (hc *HelixClient) client(ctx context.Context, opts helix.Options) (*helix.Client, error) {
	opts.ClientID = hc.ClientID
	opts.HTTPClient = hc.http()
	if hc.APIBaseURL != "" {
		opts.APIBaseURL = hc.APIBaseURL
	}
	c, err := helix.NewClientWithContext(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}
	return c, nil
}

// api returns a client authorized with the current app token.
func (hc *HelixClient) api(ctx context.Context) (*helix.Client, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("twitch app token: %w", err)
	}
	return hc.client(ctx, helix.Options{AppAccessToken: tok})
}

func (hc *HelixClient) checkStatus(op string, resp helix.ResponseCommon, ok ...int) error {
	err := statusError(op, resp, ok...)
	if err != nil && resp.StatusCode == http.StatusUnauthorized {
		hc.AppTokenSource.Invalidate()
	}
	return err
}

func statusError(op string, resp helix.ResponseCommon, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("helix: %s failed (%d: %s) %s", op, resp.StatusCode, resp.Error, resp.ErrorMessage)
}

// ResolveUsers looks up broadcasters by login. The result is keyed by
// lower-cased login; logins Twitch does not know are absent.
func (hc *HelixClient) ResolveUsers(ctx context.Context, logins []string) (map[string]User, error) {
	out := make(map[string]User, len(logins))
	var clean []string
	for _, l := range logins {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			clean = append(clean, l)
		}
	}
	// Helix accepts at most 100 logins per request.
	for start := 0; start < len(clean); start += 100 {
		end := min(start+100, len(clean))
		c, err := hc.api(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.GetUsers(&helix.UsersParams{Logins: clean[start:end]})
		if err != nil {
			return nil, fmt.Errorf("helix: GetUsers: %w", err)
		}
		if err := hc.checkStatus("GetUsers", resp.ResponseCommon, http.StatusOK); err != nil {
			return nil, err
		}
		for _, u := range resp.Data.Users {
			out[strings.ToLower(u.Login)] = User{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName}
		}
	}
	return out, nil
}

// GetStream returns the live stream for userID, or ok=false when offline.
func (hc *HelixClient) GetStream(ctx context.Context, userID string) (Stream, bool, error) {
	if userID == "" {
		return Stream{}, false, fmt.Errorf("userID empty")
	}
	c, err := hc.api(ctx)
	if err != nil {
		return Stream{}, false, err
	}
	resp, err := c.GetStreams(&helix.StreamsParams{UserIDs: []string{userID}})
	if err != nil {
		return Stream{}, false, fmt.Errorf("helix: GetStreams: %w", err)
	}
	if err := hc.checkStatus("GetStreams", resp.ResponseCommon, http.StatusOK); err != nil {
		return Stream{}, false, err
	}
	if len(resp.Data.Streams) == 0 {
		return Stream{}, false, nil
	}
	s := resp.Data.Streams[0]
	return Stream{ID: s.ID, UserID: s.UserID, Title: s.Title, GameName: s.GameName}, true, nil
}

// CreateWebhookSubscription subscribes callback to stream.online for
// broadcasterID. secret signs every delivery.
func (hc *HelixClient) CreateWebhookSubscription(ctx context.Context, broadcasterID, callback, secret string) (string, error) {
	c, err := hc.api(ctx)
	if err != nil {
		return "", err
	}
	return createSubscription(c, helix.EventSubTransport{
		Method:   "webhook",
		Callback: callback,
		Secret:   secret,
	}, broadcasterID, hc.checkStatus)
}

// CreateWebSocketSubscription subscribes a WebSocket session to
// stream.online for broadcasterID. WebSocket transports require a user access
// token, so this call does not use the app token.
func (hc *HelixClient) CreateWebSocketSubscription(ctx context.Context, userToken, sessionID, broadcasterID string) error {
	if userToken == "" || sessionID == "" || broadcasterID == "" {
		return errors.New("missing user token, session id or broadcaster id")
	}
	c, err := hc.client(ctx, helix.Options{UserAccessToken: userToken})
	if err != nil {
		return err
	}
	// A 401 here concerns the user token; the app token stays cached.
	_, err = createSubscription(c, helix.EventSubTransport{
		Method:    "websocket",
		SessionID: sessionID,
	}, broadcasterID, statusError)
	return err
}

func createSubscription(c *helix.Client, transport helix.EventSubTransport, broadcasterID string, check func(string, helix.ResponseCommon, ...int) error) (string, error) {
	resp, err := c.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:    StreamOnline,
		Version: "1",
		Condition: helix.EventSubCondition{
			BroadcasterUserID: broadcasterID,
		},
		Transport: transport,
	})
	if err != nil {
		return "", fmt.Errorf("helix: CreateEventSubSubscription: %w", err)
	}
	// 409 means an identical subscription already exists.
	if resp.StatusCode == http.StatusConflict {
		return "", nil
	}
	if err := check("CreateEventSubSubscription", resp.ResponseCommon, http.StatusAccepted, http.StatusOK); err != nil {
		return "", err
	}
	if len(resp.Data.EventSubSubscriptions) == 0 {
		return "", nil
	}
	return resp.Data.EventSubSubscriptions[0].ID, nil
}
