package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trailhound/trailhound/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage connector API keys",
	Long: `Manage connector API keys in the OS keyring. Keys set through the
environment (TRAILHOUND_APIKEY_<CONNECTOR>) take precedence over the
keyring.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <connector>",
	Short: "Store an API key for a connector",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthSet,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <connector>",
	Short: "Remove a connector's API key from the keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDelete,
}

func init() {
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authDeleteCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])

	fmt.Printf("API key for %s: ", name)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return fmt.Errorf("empty key")
	}

	creds := config.NewCredentialStore(true)
	if err := creds.SetAPIKey(name, key); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	fmt.Printf("✓ Stored API key for %s\n", name)
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])
	creds := config.NewCredentialStore(true)
	if err := creds.DeleteAPIKey(name); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	fmt.Printf("✓ Deleted API key for %s\n", name)
	return nil
}
