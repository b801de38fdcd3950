// Package cmd provides the CLI commands for tessera.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/errors"
	"github.com/tessera-db/tessera/internal/logging"
	"github.com/tessera-db/tessera/pkg/version"
)

var (
	flagConfig  string
	flagDataDir string
	flagDebug   bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the tessera CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tessera",
		Short: "Hybrid retrieval engine over text, vectors, and geo filters",
		Long: `Tessera runs hybrid queries over a local corpus: full-text relevance,
vector nearest-neighbor distance, and geo bounding-box filters, fused
into one ranking.

Load a corpus with 'tessera load', then query it with 'tessera search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("tessera version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", ".tessera", "Data directory")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAssembleCmd())
	cmd.AddCommand(newChunksCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logCfg := logging.DefaultConfig()
	if flagDebug {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = flagDebug

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		// Logging must never block the command itself.
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}
