package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/document"
	"github.com/chararch/gorollup/extensions/snapshot"
)

func inspectCommand() *cobra.Command {
	var wrapped bool
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print a binary metadata snapshot as a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := snapshot.Load(ctx, snapshotStore(cfg), args[0])
			if err != nil {
				return err
			}
			return printMetadata(cmd, m, wrapped)
		},
	}
	cmd.Flags().BoolVar(&wrapped, "wrapped", false, "nest the document under "+document.WrapperField)
	return cmd
}

// printMetadata writes the identity of m followed by its document
func printMetadata(cmd *cobra.Command, m gorollup.Metadata, wrapped bool) error {
	doc, err := document.Marshal(m, wrapped)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# id=%q seq_no=%d primary_term=%d\n", m.ID, m.SeqNo, m.PrimaryTerm)
	fmt.Fprintln(out, string(doc))
	return nil
}
