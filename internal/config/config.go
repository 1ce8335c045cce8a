package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Logging
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Storage configuration (investigation store)
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Result cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Pipeline limits
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`

	// Connector settings
	Connectors ConnectorsConfig `yaml:"connectors" mapstructure:"connectors"`

	// HTTP server
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Security settings
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Optional graph export
	Graph GraphConfig `yaml:"graph" mapstructure:"graph"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	JSONFormat bool   `yaml:"json" mapstructure:"json"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "bolt", "sqlite", "postgres", "memory"
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type CacheConfig struct {
	TTL        time.Duration            `yaml:"ttl" mapstructure:"ttl"`
	MaxEntries int                      `yaml:"max_entries" mapstructure:"max_entries"` // mandatory cap
	PerSource  map[string]time.Duration `yaml:"per_source_ttl" mapstructure:"per_source_ttl"`
	RedisAddr  string                   `yaml:"redis_addr" mapstructure:"redis_addr"` // optional mirror
	RedisDB    int                      `yaml:"redis_db" mapstructure:"redis_db"`
}

type PipelineConfig struct {
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries" mapstructure:"max_concurrent_queries"`
	QueryTimeout         time.Duration `yaml:"query_timeout" mapstructure:"query_timeout"`
	MaxDuration          time.Duration `yaml:"max_duration" mapstructure:"max_duration"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	BackoffBase          time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffFactor        float64       `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	BackoffCap           time.Duration `yaml:"backoff_cap" mapstructure:"backoff_cap"`
	BackoffJitterFrac    float64       `yaml:"backoff_jitter_frac" mapstructure:"backoff_jitter_frac"`
	PlanQueryCap         int           `yaml:"plan_query_cap" mapstructure:"plan_query_cap"`

	EntityConfidenceThreshold int `yaml:"entity_confidence_threshold" mapstructure:"entity_confidence_threshold"`
	SourceConfidenceThreshold int `yaml:"source_confidence_threshold" mapstructure:"source_confidence_threshold"`
}

type ConnectorsConfig struct {
	Enabled            []string       `yaml:"enabled" mapstructure:"enabled"`
	DefaultRatePerHour int            `yaml:"default_rate_per_hour" mapstructure:"default_rate_per_hour"`
	RateOverrides      map[string]int `yaml:"rate_overrides" mapstructure:"rate_overrides"`
	UseKeyring         bool           `yaml:"use_keyring" mapstructure:"use_keyring"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type SecurityConfig struct {
	BlocklistFile   string `yaml:"blocklist_file" mapstructure:"blocklist_file"`
	MaxContentBytes int64  `yaml:"max_content_bytes" mapstructure:"max_content_bytes"`
}

type GraphConfig struct {
	Neo4jURI      string `yaml:"neo4j_uri" mapstructure:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user" mapstructure:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password" mapstructure:"neo4j_password"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Type:      "bolt",
			LocalPath: filepath.Join(homeDir, ".trailhound", "trailhound.db"),
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 10000,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentQueries:      16,
			QueryTimeout:              30 * time.Second,
			MaxDuration:               120 * time.Minute,
			RetryMaxAttempts:          3,
			BackoffBase:               500 * time.Millisecond,
			BackoffFactor:             2.0,
			BackoffCap:                30 * time.Second,
			BackoffJitterFrac:         0.2,
			PlanQueryCap:              200,
			EntityConfidenceThreshold: 70,
			SourceConfidenceThreshold: 60,
		},
		Connectors: ConnectorsConfig{
			Enabled:            []string{"duckduckgo", "github", "whois", "crtsh", "wayback"},
			DefaultRatePerHour: 60,
			UseKeyring:         true,
		},
		Server: ServerConfig{Addr: ":8420"},
		Security: SecurityConfig{
			MaxContentBytes: 5 * 1024 * 1024,
		},
	}
}

// Load reads configuration from a file (optional) and the environment.
// Environment variables use the TRAILHOUND_ prefix with underscores, e.g.
// TRAILHOUND_PIPELINE_MAX_CONCURRENT_QUERIES=32.
func Load(path string) (*Config, error) {
	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TRAILHOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".trailhound")
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".trailhound"))
		}
		// Default search paths are optional
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.local_path", cfg.Storage.LocalPath)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.max_entries", cfg.Cache.MaxEntries)
	v.SetDefault("pipeline.max_concurrent_queries", cfg.Pipeline.MaxConcurrentQueries)
	v.SetDefault("pipeline.query_timeout", cfg.Pipeline.QueryTimeout)
	v.SetDefault("pipeline.max_duration", cfg.Pipeline.MaxDuration)
	v.SetDefault("pipeline.retry_max_attempts", cfg.Pipeline.RetryMaxAttempts)
	v.SetDefault("pipeline.backoff_base", cfg.Pipeline.BackoffBase)
	v.SetDefault("pipeline.backoff_factor", cfg.Pipeline.BackoffFactor)
	v.SetDefault("pipeline.backoff_cap", cfg.Pipeline.BackoffCap)
	v.SetDefault("pipeline.backoff_jitter_frac", cfg.Pipeline.BackoffJitterFrac)
	v.SetDefault("pipeline.plan_query_cap", cfg.Pipeline.PlanQueryCap)
	v.SetDefault("pipeline.entity_confidence_threshold", cfg.Pipeline.EntityConfidenceThreshold)
	v.SetDefault("pipeline.source_confidence_threshold", cfg.Pipeline.SourceConfidenceThreshold)
	v.SetDefault("connectors.enabled", cfg.Connectors.Enabled)
	v.SetDefault("connectors.default_rate_per_hour", cfg.Connectors.DefaultRatePerHour)
	v.SetDefault("connectors.use_keyring", cfg.Connectors.UseKeyring)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("security.max_content_bytes", cfg.Security.MaxContentBytes)
}

// Validate rejects configurations outside the documented ranges
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive (size cap is mandatory)")
	}
	if c.Pipeline.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_queries must be positive")
	}
	if c.Pipeline.MaxDuration < time.Minute || c.Pipeline.MaxDuration > 360*time.Minute {
		return fmt.Errorf("pipeline.max_duration must be within 1-360 minutes")
	}
	if c.Pipeline.RetryMaxAttempts < 0 {
		return fmt.Errorf("pipeline.retry_max_attempts must be non-negative")
	}
	if c.Pipeline.BackoffFactor < 1 {
		return fmt.Errorf("pipeline.backoff_factor must be >= 1")
	}
	if c.Pipeline.EntityConfidenceThreshold < 0 || c.Pipeline.EntityConfidenceThreshold > 100 {
		return fmt.Errorf("pipeline.entity_confidence_threshold must be within 0-100")
	}
	if c.Pipeline.SourceConfidenceThreshold < 0 || c.Pipeline.SourceConfidenceThreshold > 100 {
		return fmt.Errorf("pipeline.source_confidence_threshold must be within 0-100")
	}
	switch c.Storage.Type {
	case "bolt", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("storage.type must be one of bolt, sqlite, postgres, memory")
	}
	if c.Storage.Type == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn required for postgres storage")
	}
	return nil
}

// RatePerHour returns the configured hourly budget for a connector
func (c *ConnectorsConfig) RatePerHour(name string, declared int) int {
	if override, ok := c.RateOverrides[name]; ok && override > 0 {
		return override
	}
	if declared > 0 {
		return declared
	}
	return c.DefaultRatePerHour
}
