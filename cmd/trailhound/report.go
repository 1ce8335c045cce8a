package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/storage"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <investigation-id>",
	Short: "Export a completed investigation's report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "", "write the report to this file instead of stdout")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open investigation store: %w", err)
	}
	defer store.Close()

	inv, err := store.GetInvestigation(ctx, args[0])
	if err != nil {
		return err
	}
	if inv.Status != models.StatusCompleted {
		return fmt.Errorf("investigation %s is %s; report not ready", args[0], inv.Status)
	}

	rep, err := store.GetReport(ctx, args[0])
	if err != nil {
		return err
	}
	return writeReport(rep, reportOut)
}
