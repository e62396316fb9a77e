// Package oauth keeps user OAuth tokens in memory and refreshes them before
// they expire. Tokens arrive either from configuration (a refresh token) or
// from the browser authorization flow served by the HTTP server.
package oauth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Token is one provider's user token.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// Valid reports whether the access token is set and not expired.
func (t Token) Valid() bool {
	return t.AccessToken != "" && (t.Expiry.IsZero() || time.Now().Before(t.Expiry))
}

// Store holds tokens keyed by provider. Waiters are woken on every Set.
type Store struct {
	mu      sync.Mutex
	tokens  map[string]Token
	changed chan struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tokens: make(map[string]Token), changed: make(chan struct{})}
}

// Set replaces provider's token. Empty refresh token and scope keep the
// previous values.
func (s *Store) Set(provider string, t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.tokens[provider]; ok {
		if t.RefreshToken == "" {
			t.RefreshToken = prev.RefreshToken
		}
		if t.Scope == "" {
			t.Scope = prev.Scope
		}
	}
	t.Scope = strings.TrimSpace(t.Scope)
	s.tokens[provider] = t
	close(s.changed)
	s.changed = make(chan struct{})
}

// Get returns provider's token and whether one is stored.
func (s *Store) Get(provider string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[provider]
	return t, ok
}

// Wait blocks until provider has a valid access token or ctx is done.
func (s *Store) Wait(ctx context.Context, provider string) (Token, error) {
	for {
		s.mu.Lock()
		t, ok := s.tokens[provider]
		ch := s.changed
		s.mu.Unlock()
		if ok && t.Valid() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-ch:
		}
	}
}
