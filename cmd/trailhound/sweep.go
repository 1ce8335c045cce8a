package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/storage"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete investigations past their retention window",
	Long: `Delete stored investigations whose retention window has expired. Each
investigation carries its own retention_days; records with retention 0
are kept indefinitely. The server runs this sweep hourly; this command
is for standalone or cron use.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open investigation store: %w", err)
	}
	defer store.Close()

	n, err := storage.Sweep(ctx, store, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired investigation(s)\n", n)
	return nil
}
