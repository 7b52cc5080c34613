package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/yacobolo/globalcss"
	"github.com/yacobolo/globalcss/internal/report"
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Serve pages and live-swap the stylesheet on every change",
	Long: `Compile the stylesheet into the assets directory, watch the source tree and
serve pages with the placeholder resolved. Connected pages swap in the new
stylesheet after every successful compile; compile errors are reported to the
pages and the terminal while the previous stylesheet stays in place.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runDev,
}

func init() {
	addDevFlags(devCmd)
}

func addDevFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "Dev server listen address (default localhost:5173)")
}

func runDev(cmd *cobra.Command, _ []string) error {
	cfg := buildConfig().WithDefaults()
	logger := report.NewLogger(os.Stderr, getBoolWithFallback("debug", "debug", false))

	if !getBoolWithFallback("quiet", "quiet", false) {
		r := report.NewReporter(cmd.OutOrStdout(), report.Options{UseColors: getBoolWithFallback("color", "color", false)})
		r.PrintDevBanner("http://"+cfg.Addr, cfg.Source, cfg.ArtifactPath())
	}
	return globalcss.Dev(cmd.Context(), cfg, logger)
}
