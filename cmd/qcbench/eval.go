package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/ardanlabs/qcommerce-evals/business/evaluate"
	"github.com/ardanlabs/qcommerce-evals/business/runstore"
	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/spf13/cobra"
)

func (a *app) evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Build the evaluation dataset and score agent runs",
	}

	cmd.AddCommand(
		a.evalSaveCmd(),
		a.evalRunCmd(),
		a.evalRunsCmd(),
	)

	return cmd
}

func (a *app) evalSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Run every reference query and save the expected answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			examples, err := evaluate.SaveBank(cmd.Context(), a.log, db, a.cfg.Eval.Dir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d examples to %s\n", len(examples), a.cfg.Eval.Dir)
			return nil
		},
	}
}

func (a *app) evalRunCmd() *cobra.Command {
	var agent string
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score recorded trajectories against the evaluation dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			examples, err := evaluate.LoadDataset(a.cfg.Eval.Dir)
			if err != nil {
				return err
			}

			records, err := trajectory.LoadDir(a.cfg.Eval.TrajectoryDir)
			if err != nil {
				return err
			}

			r := evaluate.NewRunner(a.log, db, a.compareOptions(), a.cfg.Eval.Concurrency)

			run, err := r.Run(ctx, agent, examples, records)
			if err != nil {
				return err
			}

			if err := evaluate.WriteReport(cmd.OutOrStdout(), run); err != nil {
				return err
			}

			path, err := writeRun(a.cfg.Eval.Dir, run)
			if err != nil {
				return err
			}
			a.log.Info("eval", "status", "saved", "run_id", run.ID, "path", path)

			if htmlPath != "" {
				if err := writeHTML(htmlPath, examples, run); err != nil {
					return err
				}
				a.log.Info("eval", "status", "comparison written", "path", htmlPath)
			}

			store, err := runstore.Open(ctx, a.cfg.Store)
			switch {
			case errors.Is(err, runstore.ErrDisabled):
				return nil
			case err != nil:
				return err
			}
			defer store.Close(ctx)

			if err := store.Save(ctx, run); err != nil {
				return err
			}
			a.log.Info("eval", "status", "stored", "run_id", run.ID, "driver", a.cfg.Store.Driver)

			return nil
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "agent", "name recorded with the run")
	cmd.Flags().StringVar(&htmlPath, "html", "", "also write a side by side comparison page to this path")

	return cmd
}

func (a *app) evalRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run id]",
		Short: "List stored runs, or print one run's report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := runstore.Open(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if len(args) == 1 {
				run, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return evaluate.WriteReport(cmd.OutOrStdout(), run)
			}

			runs, err := store.List(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tAGENT\tSTARTED\tEXAMPLES\tMATCHED\tANSWER QUALITY\tSQL VALIDITY")

			for _, r := range runs {
				s := r.Summary
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%.2f\n",
					r.ID, r.Agent, r.StartedAt.Local().Format("2006-01-02 15:04"), s.Examples, s.Matched, s.AnswerQuality, s.SQLValidity)
			}

			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", runstore.DefaultListLimit, "number of runs to list")

	return cmd
}

// =============================================================================

func writeRun(dir string, run evaluate.Run) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run: %w", err)
	}

	path := filepath.Join(dir, "runs", run.ID+".json")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	return path, nil
}

func writeHTML(path string, examples []evaluate.Example, run evaluate.Run) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if err := evaluate.WriteHTML(f, examples, run); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
