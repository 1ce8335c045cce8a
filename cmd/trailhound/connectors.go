package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/connectors"
)

var connectorsCheck bool

var connectorsCmd = &cobra.Command{
	Use:   "connectors",
	Short: "List configured source connectors",
	Long: `List the configured source connectors with their rate limits and base
confidence. With --check, validate each connector's credentials against
the live source.`,
	RunE: runConnectors,
}

func init() {
	connectorsCmd.Flags().BoolVar(&connectorsCheck, "check", false, "validate credentials against each source")
}

func runConnectors(cmd *cobra.Command, args []string) error {
	creds := config.NewCredentialStore(cfg.Connectors.UseKeyring)
	registry := connectors.BuildRegistry(cfg, creds)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if connectorsCheck {
		fmt.Fprintln(w, "SOURCE\tTYPE\tRATE/H\tCONFIDENCE\tCREDENTIALS")
	} else {
		fmt.Fprintln(w, "SOURCE\tTYPE\tRATE/H\tCONFIDENCE")
	}

	for _, info := range registry.StatusAll() {
		if !connectorsCheck {
			fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n",
				info.SourceName, info.SourceType, info.RateLimitPerHour, info.BaseConfidence)
			continue
		}

		conn, _ := registry.Get(info.SourceName)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		ok, err := conn.ValidateCredentials(ctx)
		cancel()

		credState := "ok"
		switch {
		case err != nil:
			credState = "error: " + err.Error()
		case !ok:
			credState = "invalid"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
			info.SourceName, info.SourceType, info.RateLimitPerHour, info.BaseConfidence, credState)
	}
	return w.Flush()
}
