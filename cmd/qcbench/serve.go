package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/qcommerce-evals/business/toolsrv"
	"github.com/ardanlabs/qcommerce-evals/foundation/sqldb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset tools over MCP and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqldb.StatusCheck(ctx, db); err != nil {
				return fmt.Errorf("status check: %w", err)
			}

			tools := toolsrv.New(a.log, db, a.cfg.Eval.ObservationRows)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())

			servers := []*http.Server{
				{Addr: a.cfg.Server.MCPHost, Handler: tools.Handler(version), ReadHeaderTimeout: 10 * time.Second},
				{Addr: a.cfg.Server.MetricsHost, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
			}

			g, ctx := errgroup.WithContext(ctx)

			for _, srv := range servers {
				g.Go(func() error {
					a.log.Info("serve", "status", "listening", "addr", srv.Addr)

					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("listen %s: %w", srv.Addr, err)
					}
					return nil
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				a.log.Info("serve", "status", "shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				var errs []error
				for _, srv := range servers {
					errs = append(errs, srv.Shutdown(shutdownCtx))
				}
				return errors.Join(errs...)
			})

			return g.Wait()
		},
	}
}
