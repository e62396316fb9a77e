package poster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultThreadsAPI = "https://graph.threads.net/v1.0"

// Threads publishes text posts through the Threads Graph API. Publishing is
// two calls: create a TEXT media container, then publish it.
type Threads struct {
	AccessToken string
	UserID      string

	BaseURL    string
	HTTPClient *http.Client
}

// NewThreads returns a Threads poster for the given account.
func NewThreads(accessToken, userID string) (*Threads, error) {
	if accessToken == "" || userID == "" {
		return nil, fmt.Errorf("threads: %w: access token and user id are required", ErrNotConfigured)
	}
	return &Threads{AccessToken: accessToken, UserID: userID}, nil
}

// Post creates and publishes a text post, returning the published post id.
func (t *Threads) Post(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("threads: empty text")
	}
	creationID, err := t.call(ctx, "threads", url.Values{
		"media_type": {"TEXT"},
		"text":       {text},
	})
	if err != nil {
		return "", fmt.Errorf("threads: create container: %w", err)
	}
	postID, err := t.call(ctx, "threads_publish", url.Values{"creation_id": {creationID}})
	if err != nil {
		return "", fmt.Errorf("threads: publish container %s: %w", creationID, err)
	}
	return postID, nil
}

func (t *Threads) call(ctx context.Context, edge string, params url.Values) (string, error) {
	base := t.BaseURL
	if base == "" {
		base = defaultThreadsAPI
	}
	// The token goes in the body: transport errors quote the request URL.
	params.Set("access_token", t.AccessToken)
	u := fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), url.PathEscape(t.UserID), edge)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(params.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient(t.HTTPClient).Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", apiError("threads", resp)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("response missing id")
	}
	return out.ID, nil
}
