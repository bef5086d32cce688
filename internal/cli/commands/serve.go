package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/souptikmandal/lineagekit/internal/engine"
	"github.com/souptikmandal/lineagekit/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot store as a read-only JSON API",
		Long: `Start an HTTP server exposing persisted runs, their lineage exports,
saved changes, impact queries and run diffs as JSON.

With --watch the configured pipeline is re-run whenever its definition or
one of its source files changes, so the API always includes the latest run.

Routes:
  GET /healthz
  GET /api/runs?limit=n
  GET /api/runs/latest
  GET /api/runs/{runID}
  GET /api/runs/{runID}/changes
  GET /api/runs/{runID}/impact?column=<id>&change=<type>
  GET /api/diff?base=<id>&current=<id>`,
		Example: `  # Serve the snapshot store
  lineagekit serve --port 9000

  # Serve and re-run the pipeline on every change
  lineagekit serve --watch --pipeline etl/orders.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if !cmd.Flags().Changed("port") {
				port = cctx.Cfg.Serve.Port
			}
			addr := fmt.Sprintf(":%d", port)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, egctx := errgroup.WithContext(ctx)

			if watch {
				p, err := engine.LoadPipeline(cctx.Cfg.Pipeline)
				if err != nil {
					return err
				}
				w, err := engine.NewWatcher(p, cctx.Logger)
				if err != nil {
					return err
				}
				defer func() { _ = w.Close() }()

				eng := engine.New(engine.Config{Store: cctx.Store, Logger: cctx.Logger})
				eg.Go(func() error {
					return w.Run(egctx, func(ctx context.Context) error {
						reloaded, err := engine.LoadPipeline(p.File)
						if err != nil {
							return err
						}
						snap, err := eng.Run(ctx, reloaded)
						if err != nil {
							return err
						}
						cctx.Renderer.Success("recorded run " + snap.Run.ID)
						return nil
					})
				})
				cctx.Renderer.Success("watching " + p.File)
			}

			srv := server.New(cctx.Store, server.Options{
				Thresholds: cctx.Cfg.Detect,
				Logger:     cctx.Logger,
			})
			eg.Go(func() error {
				return srv.ListenAndServe(egctx, addr)
			})
			cctx.Renderer.Success("serving lineage API on http://localhost" + addr)

			return eg.Wait()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config: 8765)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run the pipeline when its files change")

	return cmd
}
