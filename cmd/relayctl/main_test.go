package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dghubble/oauth1"
)

func runCLI(t *testing.T, args []string, stdin string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// isolateEnv unsets the variables that would change which destinations and
// templates the CLI sees.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CONFIG_FILE", "TWITCH_CHANNELS", "YOUTUBE_CHANNELS", "FANNAMES", "DISPLAY_NAMES",
		"NOTIFICATION_TEMPLATE", "TWITCH_NOTIFICATION_TEMPLATE", "YOUTUBE_NOTIFICATION_TEMPLATE",
		"TWITCH_THREADS_TEMPLATE", "YOUTUBE_THREADS_TEMPLATE", "TWITCH_DISCORD_TEMPLATE",
		"YOUTUBE_DISCORD_TEMPLATE", "TWITCH_CHAT_TEMPLATE", "YOUTUBE_CHAT_TEMPLATE",
		"TWITTER_API_KEY", "TWITTER_API_SECRET", "TWITTER_ACCESS_TOKEN", "TWITTER_ACCESS_TOKEN_SECRET",
		"THREADS_ACCESS_TOKEN", "THREADS_USER_ID", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID",
		"TWITCH_BOT_USERNAME", "TWITCH_OAUTH_TOKEN", "TWITCH_CHAT_CHANNEL", "DRY_RUN",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestPreviewDefaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TWITCH_CHANNELS", "foo")
	t.Setenv("DISPLAY_NAMES", "Foo-chan")

	out, err := runCLI(t, []string{"preview", "--platform", "twitch", "--destination", "x"}, "")
	if err != nil {
		t.Fatalf("preview: %v\n%s", err, out)
	}
	requireContains(t, out, "== x / twitch ==")
	requireContains(t, out, "Foo-chan is now live on Twitch!")
	requireContains(t, out, "https://twitch.tv/foo")
	requireContains(t, out, "(limit 280)")
	if strings.Contains(out, "youtube") {
		t.Errorf("--platform twitch should skip youtube templates:\n%s", out)
	}
}

func TestPreviewThreadsOnlyWhenTemplateSet(t *testing.T) {
	isolateEnv(t)
	out, err := runCLI(t, []string{"preview"}, "")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if strings.Contains(out, "threads /") {
		t.Fatalf("threads has no template and should not be previewed:\n%s", out)
	}

	t.Setenv("YOUTUBE_THREADS_TEMPLATE", `{display_name} live\n{title}`)
	out, err = runCLI(t, []string{"preview", "--destination", "threads"}, "")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	requireContains(t, out, "== threads / youtube ==")
	requireContains(t, out, "(limit 500)")
	requireContains(t, out, "1 newlines")
}

func TestPreviewOverLimit(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOTIFICATION_TEMPLATE", strings.Repeat("a", 300))

	out, err := runCLI(t, []string{"preview", "--platform", "twitch", "--destination", "x"}, "")
	if err == nil {
		t.Fatalf("expected an over-limit error:\n%s", out)
	}
	requireContains(t, out, "over the limit by 20 characters")
}

func TestPreviewAdHocTemplate(t *testing.T) {
	isolateEnv(t)
	out, err := runCLI(t, []string{"preview", "--platform", "youtube", "--template", "{display_name} {video_id} {mystery}"}, "")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	requireContains(t, out, "Example Channel dQw4w9WgXcQ {mystery}")
	requireContains(t, out, "unknown placeholders left as is: [mystery]")
}

func TestPreviewRejectsUnknownPlatform(t *testing.T) {
	isolateEnv(t)
	if _, err := runCLI(t, []string{"preview", "--platform", "kick"}, ""); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestTestPostDryRun(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DRY_RUN", "true")

	out, err := runCLI(t, []string{"test-post", "--destination", "discord"}, "")
	if err != nil {
		t.Fatalf("test-post: %v", err)
	}
	requireContains(t, out, "Posted to discord")
	requireContains(t, out, "Post id: ")
}

func TestTestPostUnknownDestination(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DRY_RUN", "true")

	_, err := runCLI(t, []string{"test-post", "--destination", "threads"}, "")
	if err == nil || !strings.Contains(err.Error(), `"threads" is not configured`) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestConfigFlag(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte("TWITCH_CHANNELS = \"tomlchannel\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := runCLI(t, []string{"--config", path, "preview", "--platform", "twitch", "--destination", "x"}, "")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	requireContains(t, out, "https://twitch.tv/tomlchannel")
}

func TestAuthorizeX(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TWITTER_API_KEY", "ck")
	t.Setenv("TWITTER_API_SECRET", "cs")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/oauth/request_token":
			if !strings.Contains(auth, `oauth_callback="oob"`) {
				http.Error(w, "callback must be oob", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret&oauth_callback_confirmed=true"))
		case "/oauth/access_token":
			if !strings.Contains(auth, `oauth_verifier="1234567"`) || !strings.Contains(auth, `oauth_token="req-token"`) {
				http.Error(w, "bad verifier", http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("oauth_token=bot-token&oauth_token_secret=bot-secret&screen_name=relaybot"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	orig := xEndpoint
	xEndpoint = oauth1.Endpoint{
		RequestTokenURL: srv.URL + "/oauth/request_token",
		AuthorizeURL:    srv.URL + "/oauth/authorize",
		AccessTokenURL:  srv.URL + "/oauth/access_token",
	}
	t.Cleanup(func() { xEndpoint = orig })

	out, err := runCLI(t, []string{"authorize-x"}, "1234567\n")
	if err != nil {
		t.Fatalf("authorize-x: %v\n%s", err, out)
	}
	requireContains(t, out, srv.URL+"/oauth/authorize?oauth_token=req-token")
	requireContains(t, out, "TWITTER_ACCESS_TOKEN=bot-token")
	requireContains(t, out, "TWITTER_ACCESS_TOKEN_SECRET=bot-secret")
}

func TestAuthorizeXRequiresAppCredentials(t *testing.T) {
	isolateEnv(t)
	if _, err := runCLI(t, []string{"authorize-x"}, ""); err == nil {
		t.Fatal("expected error without TWITTER_API_KEY")
	}
}
