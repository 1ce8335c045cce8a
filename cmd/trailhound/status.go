package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/models"
	"github.com/trailhound/trailhound/internal/storage"
)

var statusOpts struct {
	all    bool
	limit  int
	offset int
}

var statusCmd = &cobra.Command{
	Use:   "status [investigation-id]",
	Short: "Show investigation status",
	Long: `Show the status of one investigation, or list stored investigations
newest-first with --all.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusOpts.all, "all", false, "list stored investigations")
	statusCmd.Flags().IntVar(&statusOpts.limit, "limit", 20, "maximum investigations to list")
	statusCmd.Flags().IntVar(&statusOpts.offset, "offset", 0, "pagination offset")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open investigation store: %w", err)
	}
	defer store.Close()

	if statusOpts.all {
		invs, err := store.ListInvestigations(ctx, statusOpts.limit, statusOpts.offset)
		if err != nil {
			return err
		}
		return printInvestigationTable(invs)
	}

	if len(args) != 1 {
		return fmt.Errorf("provide an investigation id or use --all")
	}
	inv, err := store.GetInvestigation(ctx, args[0])
	if err != nil {
		return err
	}
	printInvestigation(inv)
	return nil
}

func printInvestigationTable(invs []*models.Investigation) error {
	if len(invs) == 0 {
		fmt.Println("No investigations stored.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tSTATUS\tENTITIES\tSTARTED")
	for _, inv := range invs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			inv.ID(),
			inv.Seed.Subject.FullName,
			inv.Status,
			inv.EntitiesFound,
			inv.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func printInvestigation(inv *models.Investigation) {
	fmt.Printf("Investigation: %s\n", inv.ID())
	fmt.Printf("  Subject:   %s\n", inv.Seed.Subject.FullName)
	fmt.Printf("  Status:    %s (%s)\n", inv.Status, inv.CurrentStage)
	fmt.Printf("  Progress:  %.0f%%\n", inv.ProgressPercentage)
	fmt.Printf("  Queries:   %d/%d\n", inv.QueriesExecuted, inv.QueriesTotal)
	fmt.Printf("  Entities:  %d\n", inv.EntitiesFound)
	fmt.Printf("  Started:   %s\n", inv.StartedAt.Format(time.RFC3339))
	if inv.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", inv.CompletedAt.Format(time.RFC3339))
	}
	if len(inv.Errors) > 0 {
		fmt.Printf("  Errors:    %d\n", len(inv.Errors))
		for _, e := range inv.Errors {
			fmt.Printf("    - [%s] %s\n", e.Kind, e.Message)
		}
	}
}
