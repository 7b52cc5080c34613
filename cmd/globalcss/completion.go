package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Print a completion script for the globalcss dev, build and follow commands
and their flags, including the --backend values.

  globalcss completion bash > /etc/bash_completion.d/globalcss
  globalcss completion zsh > "${fpath[1]}/_globalcss"
  globalcss completion fish > ~/.config/fish/completions/globalcss.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func backendCompletion(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return []string{"libsass\tin-process libsass", "dartsass\tDart Sass embedded protocol"}, cobra.ShellCompDirectiveNoFileComp
}
