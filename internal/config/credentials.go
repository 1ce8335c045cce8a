package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "trailhound"

// CredentialStore resolves connector API keys. Environment variables win
// over the OS keyring so CI and containers work without a keychain.
type CredentialStore struct {
	useKeyring bool
}

// NewCredentialStore creates a credential store
func NewCredentialStore(useKeyring bool) *CredentialStore {
	return &CredentialStore{useKeyring: useKeyring}
}

// APIKey returns the key for a connector, empty if unset.
// Lookup order: TRAILHOUND_APIKEY_<NAME> env var, then the OS keyring.
func (s *CredentialStore) APIKey(connector string) string {
	envKey := "TRAILHOUND_APIKEY_" + strings.ToUpper(connector)
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if !s.useKeyring {
		return ""
	}
	secret, err := keyring.Get(keyringService, connector)
	if err != nil {
		// Missing entry or no keychain available: both mean "no key"
		return ""
	}
	return secret
}

// SetAPIKey stores a key in the OS keyring
func (s *CredentialStore) SetAPIKey(connector, key string) error {
	if !s.useKeyring {
		return fmt.Errorf("keyring disabled in configuration")
	}
	if err := keyring.Set(keyringService, connector, key); err != nil {
		return fmt.Errorf("failed to store key for %s: %w", connector, err)
	}
	return nil
}

// DeleteAPIKey removes a stored key
func (s *CredentialStore) DeleteAPIKey(connector string) error {
	if err := keyring.Delete(keyringService, connector); err != nil {
		return fmt.Errorf("failed to delete key for %s: %w", connector, err)
	}
	return nil
}
