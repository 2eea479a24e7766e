// Command compositectl runs composite tooling without the HTTP server:
// extracting and inspecting analysis files, comparing composite exports and
// applying database migrations.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliState is shared by the subcommands through the root's persistent flags.
type cliState struct {
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	rootCmd := &cobra.Command{
		Use:          "compositectl",
		Short:        "Composite extraction, comparison and maintenance tools",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewCLI(state.verbose)
			if err != nil {
				return err
			}
			state.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(extractCmd(state))
	rootCmd.AddCommand(inspectCmd(state))
	rootCmd.AddCommand(compareCmd(state))
	rootCmd.AddCommand(migrateCmd(state))

	return rootCmd
}
