package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "globalcss",
	Short: "Live-reloading global stylesheet for server-rendered pages",
	Long: `Compile one global stylesheet (CSS, SCSS or Sass), serve it during
development and swap it into open pages without a reload when it changes.
'globalcss build' produces a content-hashed stylesheet for production.`,
	// Default behavior: run dev when no subcommand is given.
	// We must call loadConfig here because PreRunE of devCmd
	// is not triggered when delegating via rootCmd.RunE.
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		return runDev(cmd, nil)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags (inherited by all subcommands)
	pf := rootCmd.PersistentFlags()
	pf.BoolP("debug", "d", false, "Enable debug logging")
	pf.Bool("quiet", false, "Suppress summaries (errors are still printed)")
	pf.Bool("color", false, "Force color output")
	pf.String("config", ".globalcss.yaml", "Config file path")
	pf.String("source", "", "Authored stylesheet (default src/global.scss)")
	pf.String("output-filename", "", "Name of the emitted stylesheet (default global.css)")
	pf.String("assets", "", "Static assets directory (default static)")
	pf.String("pages", "", "Page templates directory (default pages)")
	pf.String("placeholder", "", "Template parameter replaced by the stylesheet link (default %globalcss%)")
	pf.String("backend", "", "Compiler backend: libsass|dartsass (default libsass)")
	pf.StringSlice("load-path", nil, "Extra @import/@use directories")
	_ = rootCmd.RegisterFlagCompletionFunc("backend", backendCompletion)

	// dev is also the root command's default action
	addDevFlags(rootCmd)

	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}
