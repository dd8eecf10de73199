package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train a model on the training splits and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, closeStore, err := a.open()
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := p.Train(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d documents, vocabulary %d, dictionary %d, training accuracy %.2f%%\n",
				res.RunID, res.Docs, res.VocabularySize, res.DictionarySize, res.Accuracy*100)
			return err
		},
	}
}
