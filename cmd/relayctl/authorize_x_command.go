package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/dghubble/oauth1/twitter"
	"github.com/spf13/cobra"
)

// xEndpoint is the OAuth 1.0a endpoint for the PIN flow.
var xEndpoint = twitter.AuthorizeEndpoint

func newAuthorizeXCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize-x",
		Short: "Obtain X access tokens for the bot account (PIN flow)",
		Long: "Authorize the app configured by TWITTER_API_KEY and TWITTER_API_SECRET to post\n" +
			"as the bot account, and print the access token pair to configure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.TwitterAPIKey == "" || cfg.TwitterAPISecret == "" {
				return errors.New("TWITTER_API_KEY and TWITTER_API_SECRET are required")
			}
			oc := &oauth1.Config{
				ConsumerKey:    cfg.TwitterAPIKey,
				ConsumerSecret: cfg.TwitterAPISecret,
				CallbackURL:    "oob",
				Endpoint:       xEndpoint,
			}

			requestToken, requestSecret, err := oc.RequestToken()
			if err != nil {
				return fmt.Errorf("request token: %w", err)
			}
			authURL, err := oc.AuthorizationURL(requestToken)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL while logged in as the bot account:\n\n  %s\n\nEnter the PIN: ", authURL)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return err
				}
				return errors.New("no PIN entered")
			}
			pin := strings.TrimSpace(scanner.Text())
			if pin == "" {
				return errors.New("no PIN entered")
			}

			accessToken, accessSecret, err := oc.AccessToken(requestToken, requestSecret, pin)
			if err != nil {
				return fmt.Errorf("access token: %w", err)
			}
			fmt.Fprintf(out, "\nAdd these to your environment:\n\nTWITTER_ACCESS_TOKEN=%s\nTWITTER_ACCESS_TOKEN_SECRET=%s\n", accessToken, accessSecret)
			return nil
		},
	}
}
