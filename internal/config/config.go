// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment variable overrides,
// e.g. NOTIFIER_DATABASE__URL overrides database.url.
const envPrefix = "NOTIFIER_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Match    MatchConfig    `koanf:"match"`
	Limits   LimitsConfig   `koanf:"limits"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Retry    RetryConfig    `koanf:"retry"`
	Channels ChannelsConfig `koanf:"channels"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "text"
}

// IngestConfig contains event ingestion settings.
type IngestConfig struct {
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// MatchConfig contains matcher settings.
type MatchConfig struct {
	Workers            int           `koanf:"workers"`
	DefaultLeadTime    time.Duration `koanf:"default_lead_time"`
	ImminentThreshold  time.Duration `koanf:"imminent_threshold"`
	PreferencePageSize int           `koanf:"preference_page_size"`
}

// LimitsConfig contains per-user per-channel frequency cap settings.
type LimitsConfig struct {
	MaxPerWindow               int           `koanf:"max_per_window"`
	Window                     time.Duration `koanf:"window"`
	PriorityOverridesPerWindow int           `koanf:"priority_overrides_per_window"`
}

// DedupConfig contains intent idempotency cache settings.
type DedupConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DispatchConfig contains dispatcher and channel worker settings.
type DispatchConfig struct {
	QueueSize         int           `koanf:"queue_size"`
	WorkersPerChannel int           `koanf:"workers_per_channel"`
	AdapterTimeout    time.Duration `koanf:"adapter_timeout"`
}

// RetryConfig contains retry scheduler settings.
type RetryConfig struct {
	BaseBackoff    time.Duration `koanf:"base_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	MaxAttempts    int           `koanf:"max_attempts"`
	JitterFraction float64       `koanf:"jitter_fraction"`
	PollInterval   time.Duration `koanf:"poll_interval"`
	BatchSize      int           `koanf:"batch_size"`
}

// ChannelsConfig contains channel adapter settings.
type ChannelsConfig struct {
	Email EmailConfig    `koanf:"email"`
	SMS   ProviderConfig `koanf:"sms"`
	Push  ProviderConfig `koanf:"push"`
}

// EmailConfig contains SMTP settings for the email adapter.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// ProviderConfig contains settings for HTTP-provider-backed adapters.
type ProviderConfig struct {
	Enabled     bool    `koanf:"enabled"`
	ProviderURL string  `koanf:"provider_url"`
	APIKey      string  `koanf:"api_key"`
	RateLimit   float64 `koanf:"rate_limit"` // requests per second to the provider
}

// Default returns the configuration defaults. Platform policy constants
// (5 notifications per channel per 24h, 7 day deadline lead time, one
// priority override per window) live here.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ingest: IngestConfig{
			Retention:     90 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Match: MatchConfig{
			Workers:            4,
			DefaultLeadTime:    7 * 24 * time.Hour,
			ImminentThreshold:  72 * time.Hour,
			PreferencePageSize: 500,
		},
		Limits: LimitsConfig{
			MaxPerWindow:               5,
			Window:                     24 * time.Hour,
			PriorityOverridesPerWindow: 1,
		},
		Dedup: DedupConfig{
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Dispatch: DispatchConfig{
			QueueSize:         256,
			WorkersPerChannel: 2,
			AdapterTimeout:    10 * time.Second,
		},
		Retry: RetryConfig{
			BaseBackoff:    30 * time.Second,
			MaxBackoff:     1 * time.Hour,
			MaxAttempts:    6,
			JitterFraction: 0.1,
			PollInterval:   5 * time.Second,
			BatchSize:      100,
		},
		Channels: ChannelsConfig{
			Email: EmailConfig{SMTPPort: 587},
		},
	}
}

// Load reads configuration from the given YAML file (optional) and
// applies environment overrides on top of defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// NOTIFIER_DATABASE__URL -> database.url
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}

	return cfg, nil
}
