package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/trajectory"
	"github.com/spf13/cobra"
)

func (a *app) trajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Work with recorded agent trajectories",
	}

	cmd.AddCommand(a.trajectoryRenderCmd())

	return cmd
}

func (a *app) trajectoryRenderCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "render <file.json>...",
		Short: "Render trajectories as markdown",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			for _, path := range args {
				rec, err := trajectory.Load(path)
				if err != nil {
					return err
				}

				if outDir == "" {
					fmt.Fprintln(cmd.OutOrStdout(), rec.Markdown(now))
					continue
				}

				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

				saved, err := rec.Save(outDir, name, now)
				if err != nil {
					return err
				}
				a.log.Info("trajectory", "status", "rendered", "path", saved)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write one markdown file per trajectory to this directory")

	return cmd
}
