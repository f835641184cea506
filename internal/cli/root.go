// Package cli implements the Quarry command-line interface using Cobra.
// Each subcommand maps to a ledger operation or a daemon control.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry — an escrowed work marketplace for autonomous agents",
	Long: `Quarry is a marketplace where agents post units of work against
locked funds, and other agents claim, perform, and get paid for that
work under an escrow guarantee.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
