package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default .globalcss.yaml config file",
	Long:  `Create a .globalcss.yaml configuration file in the current directory with sensible defaults.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(".globalcss.yaml"); err == nil && !force {
			return fmt.Errorf(".globalcss.yaml already exists (use --force to overwrite)")
		}

		if err := os.WriteFile(".globalcss.yaml", []byte(defaultConfig), 0644); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Created .globalcss.yaml")
		return nil
	},
}

const defaultConfig = `# globalcss configuration

source: src/global.scss
output-filename: global.css
assets: static              # dev stylesheet is written here
pages: pages
placeholder: "%globalcss%"
debug: false

compiler:
  backend: libsass          # libsass | dartsass
  style: compressed         # production style: compressed | expanded
  sass-binary: sass
  load-paths: []

dev:
  addr: localhost:5173

build:
  out-dir: build
  include:
    - "**/*.html"
  component-exts:
    - .templ
    - .svelte
`

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
