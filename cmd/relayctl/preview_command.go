package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kevinwang1011/twitter-twitch-notification-bot/dedup"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/message"
	"github.com/kevinwang1011/twitter-twitch-notification-bot/poster"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var platformFlag, templateFlag, destinationFlag string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the configured templates with sample data",
		Long: "Render every configured template with sample data and report its length.\n" +
			"Fails when a message is longer than its destination allows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			platforms, err := parsePlatform(platformFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if templateFlag != "" {
				over := 0
				for _, p := range platforms {
					if !printPreview(out, destinationFlag, p, templateFlag, sampleContext(cfg, p)) {
						over++
					}
				}
				return overLimit(over)
			}

			// Dry run enables every destination that has a template.
			all := *cfg
			all.DryRun = true
			set, err := poster.FromConfig(&all)
			if err != nil {
				return err
			}
			over := 0
			for _, d := range set.Destinations {
				if destinationFlag != "" && d.Name != destinationFlag {
					continue
				}
				for _, p := range platforms {
					tmpl, ok := d.Templates[p]
					if !ok {
						continue
					}
					if !printPreview(out, d.Name, p, tmpl, sampleContext(cfg, p)) {
						over++
					}
				}
			}
			return overLimit(over)
		},
	}
	cmd.Flags().StringVar(&platformFlag, "platform", "all", "Platform to preview: twitch, youtube or all")
	cmd.Flags().StringVar(&templateFlag, "template", "", "Preview this template instead of the configured ones")
	cmd.Flags().StringVar(&destinationFlag, "destination", "", "Only preview this destination (x, threads, discord, twitch_chat)")
	return cmd
}

// printPreview writes one rendered template and reports whether it fits the
// destination's limit.
func printPreview(out io.Writer, dest string, p dedup.Platform, tmpl string, vars message.Context) bool {
	pv := message.RenderPreview(tmpl, vars)
	limit := limits[dest]

	label := string(p)
	if dest != "" {
		label = dest + " / " + label
	}
	fmt.Fprintf(out, "== %s ==\n%s\n", label, pv.Text)
	fmt.Fprintf(out, "-- %d characters, %d newlines", pv.Chars, pv.Newlines)
	if limit > 0 {
		fmt.Fprintf(out, " (limit %d)", limit)
	}
	if unresolved := message.Unresolved(tmpl, vars); len(unresolved) > 0 {
		fmt.Fprintf(out, "\n-- unknown placeholders left as is: %v", unresolved)
	}
	fits := pv.Fits(limit)
	if !fits {
		fmt.Fprintf(out, "\n!! over the limit by %d characters", pv.Chars-limit)
	}
	fmt.Fprint(out, "\n\n")
	return fits
}

func overLimit(n int) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d message(s) exceed their destination's character limit", n)
}
