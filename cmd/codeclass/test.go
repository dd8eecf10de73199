package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Evaluate the stored model on the test splits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeStore, err := a.open()
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := p.Test(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d correct, accuracy %.2f%%\n",
				res.RunID, res.Correct, res.Total, res.Accuracy()*100)
			return err
		},
	}
}
