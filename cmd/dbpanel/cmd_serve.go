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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/ipc"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// newServeCmd creates the serve subcommand used by the editor extension.
func newServeCmd() *cobra.Command {
	var socket, metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor extension over a local socket",
		Long: `Run in the foreground and answer newline-delimited JSON requests on a Unix
socket (a named pipe on Windows). Stop with Ctrl+C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			if cmd.Flags().Changed("socket") {
				cfg.IPC.Socket = socket
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv, err := ipc.NewServer(cfg.IPC.Socket)
			if err != nil {
				return err
			}
			ipc.RegisterHandlers(srv, svc)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer srv.Stop()

			if cfg.Metrics.Addr != "" {
				stop := serveMetrics(cfg.Metrics.Addr)
				defer stop()
			}

			fmt.Fprintf(os.Stderr, "dbpanel listening on %s\n", srv.Path())

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigChan
			logger.Info("Shutting down", "signal", sig.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "socket or pipe path (default platform specific)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")
	return cmd
}

// serveMetrics exposes /metrics on addr and returns a shutdown function.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics endpoint listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}
