package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newPredictCmd(a *app) *cobra.Command {
	var dist bool

	cmd := &cobra.Command{
		Use:   "predict [file|-]",
		Short: "Predict the language of a file or of stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			p, closeStore, err := a.open()
			if err != nil {
				return err
			}
			defer closeStore()

			m, err := p.Predict()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !dist {
				lang, err := m.PredictLabel(text)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, lang)
				return err
			}
			probs, err := m.PredictDistribution(text)
			if err != nil {
				return err
			}
			for _, lp := range probs {
				if _, err := fmt.Fprintf(out, "%s\t%.4f\n", lp.Language, lp.Probability); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dist, "dist", false, "Print the probability of every language")

	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(b), nil
}
