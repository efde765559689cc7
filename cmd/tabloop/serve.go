package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/tabloop"
	"github.com/aretw0/tabloop/internal/cli"
	httpAdapter "github.com/aretw0/tabloop/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds how long in-flight requests may take after a signal.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts tabloop as an HTTP server exposing /v1/ask, the ledger endpoints,
a server-sent event stream at /v1/events and, when enabled, /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		streams := httpAdapter.NewStreamManager(logger)
		rt, err := cli.Build(ctx, cfg, logger, streams)
		if err != nil {
			return err
		}
		defer rt.Close()

		opts := []httpAdapter.Option{
			httpAdapter.WithLedger(rt.Engine.Ledger()),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithLogger(logger),
		}
		if cfg.Server.Metrics {
			opts = append(opts, httpAdapter.WithGatherer(rt.Registry))
		}
		handler, err := httpAdapter.NewHandler(rt.Engine, opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		cli.PrintBanner(cmd.ErrOrStderr(), tabloop.Version)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Starting tabloop server", "addr", srv.Addr, "ledger", cfg.Ledger.Backend)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Start shutdown...", "signal", ctx.Signal())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("tabloop server stopped gracefully")
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides config)")
}
