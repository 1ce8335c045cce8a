package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/server"
	"github.com/trailhound/trailhound/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the investigation API server",
	Long: `Run the HTTP API server: investigation submission, status, reports,
websocket progress streams, connector status, and Prometheus metrics.

The server applies the configured retention policy hourly, deleting
investigations past their retention window.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	go retentionLoop(ctx, a)

	logger.WithField("addr", cfg.Server.Addr).Info("Starting Trailhound server")
	srv := server.New(cfg.Server, a.manager, a.registry, a.metrics)
	return srv.ListenAndServe(ctx)
}

// retentionLoop deletes expired investigations once an hour
func retentionLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		n, err := storage.Sweep(sweepCtx, a.store, time.Now().UTC())
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Retention sweep failed")
		} else if n > 0 {
			logger.WithField("deleted", n).Info("Retention sweep removed expired investigations")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
