package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/download"
	"github.com/spf13/cobra"
)

func (a *app) datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build, fetch and inspect the DuckDB snapshot",
	}

	cmd.AddCommand(
		a.datasetSeedCmd(),
		a.datasetCheckCmd(),
		a.datasetSchemaCmd(),
		a.datasetDownloadCmd(),
	)

	return cmd
}

func (a *app) datasetSeedCmd() *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Build a synthetic snapshot with the documented invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = a.cfg.Dataset.Seed
			}

			db, _, err := dataset.Seed(cmd.Context(), a.log, a.cfg.Dataset.Path, seed)
			if err != nil {
				return err
			}

			return db.Close()
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "fixture seed (defaults to the configured seed)")

	return cmd
}

func (a *app) datasetCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the snapshot against the data invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			vs, err := dataset.Check(cmd.Context(), db)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(vs) == 0 {
				fmt.Fprintf(out, "%s: all %d invariants hold\n", a.cfg.Dataset.Path, len(dataset.Invariants))
				return nil
			}

			for _, v := range vs {
				fmt.Fprintln(out, v)
			}

			return fmt.Errorf("check: %d invariants violated", len(vs))
		},
	}
}

func (a *app) datasetSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the schema context given to agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			schema, err := dataset.SchemaContext(cmd.Context(), db)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), schema)
			return nil
		},
	}
}

func (a *app) datasetDownloadCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the workshop snapshot from Google Drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := download.Download(cmd.Context(), a.log, download.Options{
				URL:      download.DriveURL(a.cfg.Dataset.FileID),
				Dest:     a.cfg.Dataset.Path,
				Force:    force,
				Progress: os.Stderr,
			})

			if errors.Is(err, download.ErrExists) {
				fmt.Fprintf(cmd.OutOrStdout(), "File already exists: %s\nUse --force to re-download.\n", a.cfg.Dataset.Path)
				return nil
			}

			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-download even if the file exists")

	return cmd
}
