package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/yacobolo/globalcss"
	"github.com/yacobolo/globalcss/internal/report"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the stylesheet for production and render pages",
	Long: `Compile the stylesheet with the production style, write it under a
content-hashed name, copy the static assets and replace the placeholder in
every page with a link to the hashed stylesheet. The development stylesheet is
not part of the output.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.String("out-dir", "", "Output directory (default build)")
	f.StringSlice("include", nil, "Glob patterns for pages, relative to --pages")
	f.String("style", "", "Production output style: compressed|expanded")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg := buildConfig().WithDefaults()
	logger := report.NewLogger(os.Stderr, getBoolWithFallback("debug", "debug", false))
	r := report.NewReporter(cmd.OutOrStdout(), report.Options{
		UseColors:        getBoolWithFallback("color", "color", false),
		PrintSourceLines: true,
	})

	res, err := globalcss.Build(cmd.Context(), cfg, logger)
	if err != nil {
		r.PrintError(err)
		return errors.New("build failed")
	}

	if !getBoolWithFallback("quiet", "quiet", false) {
		r.PrintBuildSummary(res, cfg.OutDir)
	}
	return nil
}
