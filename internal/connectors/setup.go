package connectors

import (
	"log/slog"

	"github.com/trailhound/trailhound/internal/config"
)

// BuildRegistry constructs the connector set named in the configuration.
// Unknown names are logged and skipped so a stale config cannot prevent
// startup.
func BuildRegistry(cfg *config.Config, creds *config.CredentialStore) *Registry {
	logger := slog.Default().With("component", "connectors")
	http := NewHTTPClient(cfg.Security.MaxContentBytes)
	reg := NewRegistry()

	rate := func(name string, declared int) int {
		return cfg.Connectors.RatePerHour(name, declared)
	}

	for _, name := range cfg.Connectors.Enabled {
		switch name {
		case "duckduckgo":
			reg.Register(NewDuckDuckGo(http, rate(name, 100)))
		case "github":
			reg.Register(NewGitHub(creds.APIKey("github"), rate(name, 600)))
		case "whois":
			reg.Register(NewWhois(rate(name, 60)))
		case "crtsh":
			reg.Register(NewCrtSh(http, rate(name, 60)))
		case "wayback":
			reg.Register(NewWayback(http, rate(name, 120)))
		case "hibp":
			reg.Register(NewBreach(http, creds.APIKey("hibp"), rate(name, 600)))
		default:
			logger.Warn("unknown connector in config, skipping", "name", name)
		}
	}
	return reg
}
