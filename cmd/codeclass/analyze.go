package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Report the most frequent words of the training splits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeStore, err := a.open()
			if err != nil {
				return err
			}
			defer closeStore()

			runID, top, err := p.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "run %s: top %d words\n", runID, len(top)); err != nil {
				return err
			}
			for i, wc := range top {
				if _, err := fmt.Fprintf(out, "%d\t%s\t%d\n", i+1, wc.Word, wc.Count); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
