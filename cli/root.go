// Package cli implements the construdocs command line.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "construdocs",
		Short:        "Retrieval-augmented QA service over construction project documents",
		Version:      Version,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newSynthCmd(),
		newMCPCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}
