package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessera-db/tessera/internal/content"
	"github.com/tessera-db/tessera/internal/output"
	"github.com/tessera-db/tessera/internal/store"
)

func newChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Navigate a content's chunks by sequence number",
	}

	cmd.AddCommand(newChunksNextCmd())
	cmd.AddCommand(newChunksPrevCmd())
	cmd.AddCommand(newChunksRangeCmd())
	return cmd
}

func withNavigator(cmd *cobra.Command, fn func(nav *content.Navigator, out *output.Writer) error) error {
	out := output.New(cmd.OutOrStdout())

	if err := requireData(flagDataDir); err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(content.NewNavigator(a.store), out)
}

func printChunk(out *output.Writer, ch *store.Chunk, found bool) {
	if !found {
		out.Plain("not found")
		return
	}
	out.Plainf("chunk %s (content %s, seq %d, %d bytes)", ch.ID, ch.ContentID, ch.SeqNum, ch.SizeBytes)
	out.Plain(ch.Text)
}

func newChunksNextCmd() *cobra.Command {
	var seq int
	cmd := &cobra.Command{
		Use:   "next <content-id>",
		Short: "Show the chunk after the given sequence number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(cmd, func(nav *content.Navigator, out *output.Writer) error {
				ch, found, err := nav.Next(cmd.Context(), args[0], seq)
				if err != nil {
					return err
				}
				printChunk(out, ch, found)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&seq, "seq", 0, "Current sequence number")
	return cmd
}

func newChunksPrevCmd() *cobra.Command {
	var seq int
	cmd := &cobra.Command{
		Use:   "prev <content-id>",
		Short: "Show the chunk before the given sequence number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(cmd, func(nav *content.Navigator, out *output.Writer) error {
				ch, found, err := nav.Previous(cmd.Context(), args[0], seq)
				if err != nil {
					return err
				}
				printChunk(out, ch, found)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&seq, "seq", 0, "Current sequence number")
	return cmd
}

func newChunksRangeCmd() *cobra.Command {
	var startSeq, count int
	cmd := &cobra.Command{
		Use:   "range <content-id>",
		Short: "Show an ordered range of chunks",
		Long: `Show chunks [start, start+count) in sequence order. Ranges past the
end of the content clip to what exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(cmd, func(nav *content.Navigator, out *output.Writer) error {
				chunks, err := nav.Range(cmd.Context(), args[0], startSeq, count)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					out.Plain("no chunks in range")
					return nil
				}
				for _, ch := range chunks {
					out.Plainf("[%d] %s", ch.SeqNum, ch.ID)
					out.Plain(ch.Text)
				}
				out.Plain(fmt.Sprintf("%d chunks", len(chunks)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&startSeq, "start", 0, "First sequence number")
	cmd.Flags().IntVar(&count, "count", 10, "Number of chunks")
	return cmd
}
