package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/cliniq/clawd/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"        _                       _\n" +
		"    ___| | __ ___      __   __| |\n" +
		"   / __| |/ _` \\ \\ /\\ / /  / _` |\n" +
		"  | (__| | (_| |\\ V  V /  | (_| |\n" +
		"   \\___|_|\\__,_| \\_/\\_/    \\__,_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "clawd",
	Short: "clawd - founder's chief-of-staff assistant",
	Long:  color.CyanString(logo) + "\nAn assistant server that triages Gmail, drafts calendar events,\nfinds Slack open loops and audits public websites.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
}
