package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/document"
	"github.com/chararch/gorollup/extensions/snapshot"
)

func convertCommand() *cobra.Command {
	var (
		wrapped     bool
		id          string
		seqNo       int64
		primaryTerm int64
	)
	cmd := &cobra.Command{
		Use:   "convert <document.json|-> <snapshot>",
		Short: "Write a JSON metadata document as a binary snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			iter := jsoniterConfig.BorrowIterator(data)
			defer jsoniterConfig.ReturnIterator(iter)
			var m gorollup.Metadata
			if wrapped {
				m, err = document.ParseWrappedMetadata(iter, id, seqNo, primaryTerm)
			} else {
				m, err = document.ParseMetadata(iter, id, seqNo, primaryTerm)
			}
			if err != nil {
				return err
			}
			return snapshot.Save(cmd.Context(), snapshotStore(cfg), args[1], m)
		},
	}
	cmd.Flags().BoolVar(&wrapped, "wrapped", false, "the document is nested under "+document.WrapperField)
	cmd.Flags().StringVar(&id, "id", gorollup.NoID, "metadata id")
	cmd.Flags().Int64Var(&seqNo, "seq-no", gorollup.UnassignedSeqNo, "sequence number of the stored document")
	cmd.Flags().Int64Var(&primaryTerm, "primary-term", gorollup.UnassignedPrimaryTerm, "primary term of the stored document")
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}
