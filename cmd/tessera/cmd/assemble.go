package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/content"
	"github.com/tessera-db/tessera/internal/output"
)

func newAssembleCmd() *cobra.Command {
	var includeText bool
	var format string

	cmd := &cobra.Command{
		Use:   "assemble <content-id>",
		Short: "Assemble a content's chunks into metadata and text",
		Long: `Assemble returns a content's metadata and ordered chunk summaries.
With --text, the chunk bodies are concatenated in sequence order.

Examples:
  tessera assemble 6f1c9a
  tessera assemble 6f1c9a --text
  tessera assemble 6f1c9a --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())

			if err := requireData(flagDataDir); err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			asm, err := content.NewAssembler(a.store, 128)
			if err != nil {
				return err
			}
			result, err := asm.Assemble(cmd.Context(), args[0], includeText)
			if err != nil {
				return err
			}

			if format == "json" {
				return out.JSON(result)
			}

			out.Plainf("content %s (%s)", result.Content.ID, result.Content.MimeType)
			out.Plainf("chunks: %d, total size: %d bytes", len(result.Chunks), result.TotalSizeBytes)
			for _, cs := range result.Chunks {
				out.Plainf("  [%d] %s (%d bytes)", cs.SeqNum, cs.ID, cs.SizeBytes)
			}
			if result.Text != nil {
				out.Plain("")
				out.Plain(*result.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeText, "text", false, "Include the assembled body text")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
