package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd runs one pass over all configured targets when called without a
// subcommand
var rootCmd = &cobra.Command{
	Use:          "icinga-passive-checks",
	Short:        "Probe hosts and submit passive check results to Icinga",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search standard locations)")

	rootCmd.AddCommand(
		runCmd,
		daemonCmd,
		reportCmd,
		statusCmd,
		checkUpdateCmd,
		updateCmd,
		serviceCmd,
		versionCmd,
	)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
