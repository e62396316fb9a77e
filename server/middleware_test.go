package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		username       string
		password       string
		token          string
		reqUsername    string
		reqPassword    string
		reqToken       string
		expectedStatus int
	}{
		{
			name:           "no auth configured - allows request",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid basic auth",
			username:       "admin",
			password:       "secret123",
			reqUsername:    "admin",
			reqPassword:    "secret123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid basic auth password",
			username:       "admin",
			password:       "secret123",
			reqUsername:    "admin",
			reqPassword:    "wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "valid token auth",
			token:          "test-token-12345",
			reqToken:       "test-token-12345",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid token auth",
			token:          "test-token-12345",
			reqToken:       "wrong-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "token auth takes precedence over basic auth",
			username:       "admin",
			password:       "secret123",
			token:          "test-token-12345",
			reqToken:       "test-token-12345",
			reqUsername:    "wrong",
			reqPassword:    "wrong",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ADMIN_USERNAME", tt.username)
			t.Setenv("ADMIN_PASSWORD", tt.password)
			t.Setenv("ADMIN_TOKEN", tt.token)

			handler := adminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}), loadAuthConfig())

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.reqUsername != "" || tt.reqPassword != "" {
				req.SetBasicAuth(tt.reqUsername, tt.reqPassword)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	cfg := &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        100 * time.Millisecond,
	}
	limiter := newIPRateLimiter(context.Background(), cfg)

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied (rate limit exceeded)")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("a different IP should be allowed")
	}

	time.Sleep(150 * time.Millisecond)

	if !limiter.allow("192.168.1.1") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{requestsPerIP: 1, window: time.Second})
	for i := 0; i < 100; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
		enabled:        true,
		requestsPerIP:  2,
		window:         time.Minute,
		trustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	handler := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), limiter)

	do := func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/twitch/start", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := do("192.168.1.1:12345", ""); rr.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	rr := do("192.168.1.1:54321", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("request 3: expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	// A client cannot escape the limit by forging X-Forwarded-For.
	if rr := do("192.168.1.1:12345", "203.0.113.9"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("forged forwarded header: expected 429, got %d", rr.Code)
	}

	// Behind a trusted proxy the forwarded client is limited, not the proxy.
	if rr := do("10.0.0.1:12345", "192.168.1.1"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("limited client via proxy: expected 429, got %d", rr.Code)
	}
	if rr := do("10.0.0.1:12345", "203.0.113.9, 10.0.0.2"); rr.Code != http.StatusOK {
		t.Errorf("other client via proxy: expected 200, got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	proxies := parseTrustedProxies("10.0.0.0/8, 2001:db8::1")
	tests := []struct {
		remote, forwarded, want string
	}{
		{"192.168.1.1:12345", "", "192.168.1.1"},
		{"192.168.1.1", "", "192.168.1.1"},
		{"[2001:db8::2]:443", "", "2001:db8::2"},
		{"[2001:db8::2]", "", "2001:db8::2"},
		{"192.168.1.1:12345", "203.0.113.9", "192.168.1.1"},
		{"10.0.0.1:80", "203.0.113.9", "203.0.113.9"},
		{"10.0.0.1:80", " 198.51.100.7 , 203.0.113.9 , 10.0.0.2", "203.0.113.9"},
		{"[2001:db8::1]:443", "203.0.113.9", "203.0.113.9"},
		{"10.0.0.1:80", "10.0.0.2", "10.0.0.2"},
		{"10.0.0.1:80", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tt.forwarded)
		}
		if got := clientIP(req, proxies); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.forwarded, got, tt.want)
		}
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got := parseTrustedProxies("10.1.2.3, 172.16.0.0/12, bogus, ::ffff:192.0.2.1")
	want := []netip.Prefix{
		netip.MustParsePrefix("10.1.2.3/32"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.0.2.1/32"),
	}
	if len(got) != len(want) {
		t.Fatalf("parseTrustedProxies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "25")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "bogus")
	cfg := loadRateLimiterConfig()
	if cfg.enabled {
		t.Error("RATE_LIMIT_ENABLED=0 should disable the limiter")
	}
	if cfg.requestsPerIP != 25 {
		t.Errorf("requestsPerIP = %d, want 25", cfg.requestsPerIP)
	}
	if cfg.window != time.Minute {
		t.Errorf("window = %v, want default 1m", cfg.window)
	}
}
