package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yacobolo/globalcss"
	"github.com/yacobolo/globalcss/internal/report"
)

var followCmd = &cobra.Command{
	Use:   "follow <page-url>",
	Short: "Follow a served page and report stylesheet swaps",
	Long: `Load a page from a running dev server, subscribe to its live reload channel
and apply every stylesheet swap to a local copy of the page. Useful to check
that a page is wired for live reloading without opening a browser.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := buildConfig().WithDefaults()
		logger := report.NewLogger(os.Stderr, getBoolWithFallback("debug", "debug", false))
		quiet := getBoolWithFallback("quiet", "quiet", false)
		useColors := report.ShouldUseColors(getBoolWithFallback("color", "color", false))
		out := cmd.OutOrStdout()

		return globalcss.Follow(cmd.Context(), globalcss.FollowConfig{
			PageURL:  args[0],
			Filename: cfg.OutputFilename,
			Logger:   logger,
			OnSwap: func(href string) {
				if !quiet {
					fmt.Fprintf(out, "%s %s\n", report.RenderStyle(report.StyleGreen, "swapped", useColors), href)
				}
			},
		})
	},
}
