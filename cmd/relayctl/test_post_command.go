package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/message"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/poster"
)

// chatConnectTimeout bounds the wait for the Twitch chat connection.
var chatConnectTimeout = 15 * time.Second

func newTestPostCommand(ctx *commandContext) *cobra.Command {
	var destinationFlag, platformFlag, textFlag string
	cmd := &cobra.Command{
		Use:   "test-post",
		Short: "Publish a test announcement to one destination",
		Long: "Publish a sample announcement, or --text, to one configured destination.\n" +
			"This posts for real unless DRY_RUN is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			set, err := poster.FromConfig(cfg)
			if err != nil {
				return err
			}
			dest, err := set.Destination(destinationFlag)
			if err != nil {
				return err
			}

			text := textFlag
			if text == "" {
				platforms, err := parsePlatform(platformFlag)
				if err != nil {
					return err
				}
				if len(platforms) != 1 {
					return errors.New("--platform must be twitch or youtube")
				}
				tmpl, ok := dest.Templates[platforms[0]]
				if !ok {
					return fmt.Errorf("%s has no %s template", dest.Name, platforms[0])
				}
				text = message.Render(tmpl, sampleContext(cfg, platforms[0]))
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if dest.Name == poster.NameTwitchChat && set.Chat != nil {
				go set.Chat.Run(runCtx)
				if err := waitConnected(runCtx, set.Chat); err != nil {
					return err
				}
			}

			id, err := dest.Poster.Post(runCtx, text)
			if err != nil {
				if hint := poster.Hint(err); hint != "" {
					return fmt.Errorf("%w (%s)", err, hint)
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Posted to %s\n", dest.Name)
			if id != "" {
				fmt.Fprintf(out, "Post id: %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&destinationFlag, "destination", "d", "", "Destination to post to (x, threads, discord, twitch_chat)")
	cmd.Flags().StringVar(&platformFlag, "platform", "twitch", "Template to use: twitch or youtube")
	cmd.Flags().StringVar(&textFlag, "text", "", "Post this text instead of a rendered template")
	_ = cmd.MarkFlagRequired("destination")
	return cmd
}

func waitConnected(ctx context.Context, chat *poster.TwitchChat) error {
	ctx, cancel := context.WithTimeout(ctx, chatConnectTimeout)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !chat.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("twitch chat did not connect: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
