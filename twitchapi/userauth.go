package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/oauth"
)

// Provider is the oauth.Store key for the Twitch user token.
const Provider = "twitch"

// UserAuth runs the authorization-code flow for the Twitch user token that
// EventSub WebSocket subscriptions require.
type UserAuth struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

// NewUserAuth returns a UserAuth for the given app. stream.online needs no
// scope, so scopes may be empty.
func NewUserAuth(clientID, clientSecret, redirectURI string, scopes ...string) *UserAuth {
	return &UserAuth{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint:     twitch.Endpoint,
	}}
}

func (a *UserAuth) ctx(ctx context.Context) context.Context {
	if a.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	return ctx
}

// AuthorizeURL builds the Twitch consent URL carrying state.
func (a *UserAuth) AuthorizeURL(state string) (string, error) {
	if a.Config.ClientID == "" || a.Config.RedirectURL == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	return a.Config.AuthCodeURL(state), nil
}

// Exchange trades an authorization code for a user token.
func (a *UserAuth) Exchange(ctx context.Context, code string) (oauth.Token, error) {
	if code == "" {
		return oauth.Token{}, errors.New("missing authorization code")
	}
	tok, err := a.Config.Exchange(a.ctx(ctx), code)
	if err != nil {
		return oauth.Token{}, fmt.Errorf("twitch code exchange: %w", err)
	}
	return fromOAuth2(tok), nil
}

// Refresh satisfies oauth.RefreshFunc.
func (a *UserAuth) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	if refreshToken == "" {
		return "", "", time.Time{}, "", errors.New("missing refresh token")
	}
	src := a.Config.TokenSource(a.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("twitch token refresh: %w", err)
	}
	t := fromOAuth2(tok)
	return t.AccessToken, t.RefreshToken, t.Expiry, t.Scope, nil
}

func fromOAuth2(tok *oauth2.Token) oauth.Token {
	return oauth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        scopeString(tok.Extra("scope")),
	}
}

// Twitch returns scope as a JSON array; other providers use a string.
func scopeString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if str, ok := p.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
