package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dghubble/oauth1"
)

const defaultTwitterAPI = "https://api.twitter.com"

// TwitterCredentials are the OAuth 1.0a user-context keys for the posting
// account.
type TwitterCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether all four values are set.
func (c TwitterCredentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// Twitter posts tweets through the X API v2 create-tweet endpoint.
type Twitter struct {
	config *oauth1.Config
	token  *oauth1.Token

	// BaseURL overrides the API host (tests).
	BaseURL string
	// HTTPClient is the transport underneath the OAuth1 signer.
	HTTPClient *http.Client
}

// NewTwitter returns a poster for the account identified by creds.
func NewTwitter(creds TwitterCredentials) (*Twitter, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("twitter: %w: api key, api secret, access token and access token secret are required", ErrNotConfigured)
	}
	return &Twitter{
		config: oauth1.NewConfig(creds.APIKey, creds.APISecret),
		token:  oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret),
	}, nil
}

// Post creates a tweet and returns its id.
func (t *Twitter) Post(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("twitter: empty text")
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	base := t.BaseURL
	if base == "" {
		base = defaultTwitterAPI
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	signCtx := context.WithValue(ctx, oauth1.HTTPClient, httpClient(t.HTTPClient))
	resp, err := t.config.Client(signCtx, t.token).Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter: %w", err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", apiError("twitter", resp)
	}
	var out struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("twitter: decode response: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("twitter: response missing tweet id")
	}
	return out.Data.ID, nil
}
