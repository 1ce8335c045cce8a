package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/models"
)

var investigateOpts struct {
	fullName   string
	usernames  []string
	emails     []string
	phones     []string
	domains    []string
	city       string
	country    string
	employer   string
	depth      int
	maxMinutes int
	out        string
}

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run a single investigation end to end",
	Long: `Run one investigation against the configured sources and write the
exposure report as JSON. Progress is reported on stderr; the report
goes to stdout or the --out file.

Only investigate yourself or a subject who has consented.`,
	Example: `  trailhound investigate --name "Alice Roe" --email alice@example.com
  trailhound investigate --name "Alice Roe" --domain aroe.example --depth 3 --out report.json`,
	RunE: runInvestigate,
}

func init() {
	f := investigateCmd.Flags()
	f.StringVar(&investigateOpts.fullName, "name", "", "subject full name (required)")
	f.StringSliceVar(&investigateOpts.usernames, "username", nil, "known username (repeatable)")
	f.StringSliceVar(&investigateOpts.emails, "email", nil, "known email address (repeatable)")
	f.StringSliceVar(&investigateOpts.phones, "phone", nil, "known phone number (repeatable)")
	f.StringSliceVar(&investigateOpts.domains, "domain", nil, "known domain (repeatable)")
	f.StringVar(&investigateOpts.city, "city", "", "geographic hint: city")
	f.StringVar(&investigateOpts.country, "country", "", "geographic hint: ISO country code")
	f.StringVar(&investigateOpts.employer, "employer", "", "professional hint: employer")
	f.IntVar(&investigateOpts.depth, "depth", 0, "follow-up rounds, 1-10 (default from config)")
	f.IntVar(&investigateOpts.maxMinutes, "max-minutes", 0, "deadline in minutes; expiry yields a partial report")
	f.StringVar(&investigateOpts.out, "out", "", "write the report to this file instead of stdout")
	_ = investigateCmd.MarkFlagRequired("name")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	seed := models.Seed{
		Subject: models.SubjectIdentifiers{
			FullName:     investigateOpts.fullName,
			Usernames:    investigateOpts.usernames,
			Emails:       investigateOpts.emails,
			PhoneNumbers: investigateOpts.phones,
			KnownDomains: investigateOpts.domains,
			GeographicHints: models.GeographicHints{
				City:    investigateOpts.city,
				Country: investigateOpts.country,
			},
			ProfessionalHints: models.ProfessionalHints{
				Employer: investigateOpts.employer,
			},
		},
		Constraints: models.Constraints{
			MaxSearchDepth:     investigateOpts.depth,
			MaxDurationMinutes: investigateOpts.maxMinutes,
		},
	}

	inv, err := a.manager.Submit(ctx, seed)
	if err != nil {
		return err
	}
	id := inv.ID()
	logger.WithField("investigation_id", id).Info("Investigation started")

	events, unsubscribe, err := a.manager.Subscribe(id)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := watchProgress(ctx, a, id, events); err != nil {
		return err
	}

	rep, err := a.manager.Report(ctx, id)
	if err != nil {
		return err
	}
	return writeReport(rep, investigateOpts.out)
}

// watchProgress prints progress to stderr until the stream ends, then
// confirms the terminal status. A cancelled context cancels the run.
func watchProgress(ctx context.Context, a *app, id string, events <-chan models.ProgressEvent) error {
	for {
		select {
		case <-ctx.Done():
			logger.Warn("Interrupted, cancelling investigation")
			_ = a.manager.Cancel(id)
			// Drain so the run can reach terminal state
			for range events {
			}
			return fmt.Errorf("investigation cancelled")
		case ev, ok := <-events:
			if !ok {
				return confirmCompleted(a, id)
			}
			switch ev.Type {
			case models.EventStageTransition:
				if stage, ok := ev.Data["stage"].(string); ok {
					fmt.Fprintf(os.Stderr, "→ %s\n", stage)
				}
			case models.EventError:
				fmt.Fprintf(os.Stderr, "  error: %v (%v)\n", ev.Data["message"], ev.Data["kind"])
			case models.EventNewEntity:
				fmt.Fprintf(os.Stderr, "  found %v new candidate(s)\n", ev.Data["candidates"])
			}
		}
	}
}

func confirmCompleted(a *app, id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	inv, err := a.manager.Status(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != models.StatusCompleted {
		return fmt.Errorf("investigation ended as %s", inv.Status)
	}
	fmt.Fprintf(os.Stderr, "✓ Completed: %d entities, %d/%d queries\n",
		inv.EntitiesFound, inv.QueriesExecuted, inv.QueriesTotal)
	return nil
}

func writeReport(rep *models.Report, path string) error {
	raw, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	raw = append(raw, '\n')
	if path == "" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.WithField("path", path).Info("Report written")
	return nil
}
