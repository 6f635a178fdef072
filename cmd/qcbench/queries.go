package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ardanlabs/qcommerce-evals/business/querybank"
	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/spf13/cobra"
)

func (a *app) queriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Inspect and run the reference query bank",
	}

	cmd.AddCommand(
		a.queriesListCmd(),
		a.queriesShowCmd(),
		a.queriesRunCmd(),
		a.queriesVerifyCmd(),
	)

	return cmd
}

func (a *app) queriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every question in the bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIFFICULTY\tTABLES\tQUESTION")

			for _, q := range querybank.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.ID, q.Difficulty, strings.Join(q.Tables, ","), q.Question)
			}

			return w.Flush()
		},
	}
}

func (a *app) queriesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a question and its reference SQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := querybank.Lookup(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %s\n", q.ID)
			fmt.Fprintf(out, "Difficulty: %s\n", q.Difficulty)
			fmt.Fprintf(out, "Tables:     %s\n", strings.Join(q.Tables, ", "))
			fmt.Fprintf(out, "Question:   %s\n\n", q.Question)

			if q.Impossible() {
				fmt.Fprintln(out, "No reference SQL: the dataset cannot answer this question.")
				return nil
			}

			fmt.Fprintln(out, q.SQL)
			return nil
		},
	}
}

func (a *app) queriesRunCmd() *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a reference query and print the result as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			tbl, err := querybank.Run(cmd.Context(), db, args[0])
			if err != nil {
				if errors.Is(err, querybank.ErrImpossible) {
					fmt.Fprintln(cmd.OutOrStdout(), err)
					return nil
				}
				return err
			}

			csv := tbl.CSV()
			if rows > 0 {
				csv = resultset.TruncateCSV(csv, rows)
			}

			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(csv, "\n"))
			return nil
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "print at most this many rows (0 prints all)")

	return cmd
}

func (a *app) queriesVerifyCmd() *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run every answerable query repeatedly and check the results are stable",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			vs, err := querybank.Verify(cmd.Context(), db, runs, a.cfg.Eval.Concurrency)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tROWS\tSTABLE\tFINGERPRINT")

			var bad int
			for _, v := range vs {
				status := "yes"
				switch {
				case v.Err != nil:
					status = "error: " + v.Err.Error()
					bad++
				case !v.Stable:
					status = "no"
					bad++
				}

				fp := v.Fingerprint
				if len(fp) > 12 {
					fp = fp[:12]
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", v.ID, v.Rows, status, fp)
			}

			if err := w.Flush(); err != nil {
				return err
			}

			if bad > 0 {
				return fmt.Errorf("verify: %d of %d queries failed or were unstable", bad, len(vs))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 3, "executions per query")

	return cmd
}
