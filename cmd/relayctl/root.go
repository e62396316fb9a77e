package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			if err := os.Setenv("CONFIG_FILE", path); err != nil {
				c.configErr = err
				return
			}
		}
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operator tools for the live-stream notification relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(newPreviewCommand(ctx))
	rootCmd.AddCommand(newTestPostCommand(ctx))
	rootCmd.AddCommand(newAuthorizeXCommand(ctx))
	return rootCmd
}
