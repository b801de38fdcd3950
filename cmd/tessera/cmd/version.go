package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/output"
	"github.com/tessera-db/tessera/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			if verbose {
				out.Plain(version.String())
			} else {
				out.Plain(version.Short())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include commit, date, and Go version")
	return cmd
}
