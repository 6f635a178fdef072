// This program manages the quick-commerce text-to-SQL evaluation: the
// reference query bank, the DuckDB snapshot, the MCP tools agents use and
// the scoring of recorded agent runs.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/ardanlabs/qcommerce-evals/business/dataset"
	"github.com/ardanlabs/qcommerce-evals/business/resultset"
	"github.com/ardanlabs/qcommerce-evals/foundation/config"
	"github.com/ardanlabs/qcommerce-evals/foundation/logger"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var (
	version   = "develop"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	return newRoot(&app{}).ExecuteContext(context.Background())
}

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "qcbench",
		Short:         "Reference queries and evaluation for the quick-commerce text-to-SQL workshop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "JSON configuration file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path of the DuckDB snapshot (overrides configuration)")

	root.AddCommand(
		a.queriesCmd(),
		a.datasetCmd(),
		a.evalCmd(),
		a.trajectoryCmd(),
		a.serveCmd(),
		a.validateCmd(),
		a.configCmd(),
		versionCmd(),
	)

	return root
}

// =============================================================================

// app carries what every command needs once flags are parsed.
type app struct {
	configPath string
	dbPath     string
	cfg        config.Config
	log        *slog.Logger
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.dbPath != "" {
		cfg.Dataset.Path = a.dbPath
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.New(os.Stderr, level, logger.Format(cfg.Log.Format), "qcbench")

	return nil
}

func (a *app) openDB() (*sqlx.DB, error) {
	db, err := dataset.Open(a.cfg.Dataset.Path)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'qcbench dataset download' or 'qcbench dataset seed')", err)
	}

	return db, nil
}

func (a *app) compareOptions() resultset.Options {
	opts := resultset.DefaultOptions()
	opts.AbsTolerance = a.cfg.Eval.AbsTolerance
	opts.RelTolerance = a.cfg.Eval.RelTolerance

	return opts
}

// =============================================================================

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration with secrets masked",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.String())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qcbench %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", buildDate)
		},
	}
}
