package main

import (
	"errors"
	"os"

	"github.com/ardanlabs/qcommerce-evals/business/setupcheck"
	"github.com/spf13/cobra"
)

func (a *app) validateCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the workshop prerequisites are installed and configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, failed, err := setupcheck.Run(cmd.Context(), cmd.OutOrStdout(), setupcheck.Options{
				Root:        root,
				DatasetPath: a.cfg.Dataset.Path,
				Environ:     os.Environ(),
			})
			if err != nil {
				return err
			}

			if failed {
				return errors.New("validate: critical checks failed")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "project root holding the .env file")

	return cmd
}
