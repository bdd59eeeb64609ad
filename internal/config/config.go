// Package config loads service configuration from a YAML file with
// environment-variable overrides. A local .env file is honored for
// development, matching the deployment setup.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Klaviyo  KlaviyoConfig  `yaml:"klaviyo"`
	Sync     SyncConfig     `yaml:"sync"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds optional Redis settings. When Addr is empty the service
// falls back to Postgres advisory locks and uncached reads.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KlaviyoConfig holds upstream API settings shared across clients; the
// per-client API key lives encrypted in the database.
type KlaviyoConfig struct {
	BaseURL        string `yaml:"base_url"`
	Revision       string `yaml:"revision"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the HTTP client timeout.
func (k KlaviyoConfig) Timeout() time.Duration {
	if k.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(k.TimeoutSeconds) * time.Second
}

// SyncConfig holds the sync pipeline settings.
type SyncConfig struct {
	IntervalMinutes     int `yaml:"interval_minutes"`
	LockTTLMinutes      int `yaml:"lock_ttl_minutes"`
	CampaignWindowDays  int `yaml:"campaign_window_days"`
	FlowWindowDays      int `yaml:"flow_window_days"`
	FlowPageCap         int `yaml:"flow_page_cap"`
	FallbackDelaySecs   int `yaml:"fallback_delay_seconds"`
	DeliverabilityDays  int `yaml:"deliverability_days"`
}

// Interval returns how often the worker scans for clients to sync.
func (s SyncConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// LockTTL returns the distributed-lock TTL for one sync run.
func (s SyncConfig) LockTTL() time.Duration {
	if s.LockTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.LockTTLMinutes) * time.Minute
}

// FallbackDelay returns the spacing between per-campaign analytics calls
// when the batched report fails.
func (s SyncConfig) FallbackDelay() time.Duration {
	if s.FallbackDelaySecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.FallbackDelaySecs) * time.Second
}

// CryptoConfig holds the credential encryption key (hex-encoded, 32 bytes).
type CryptoConfig struct {
	KeyHex string `yaml:"key_hex"`
}

// Load reads configuration from the given YAML file, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment variables are enough for containerized deployments.
func Load(path string) (*Config, error) {
	// Best-effort .env for local development
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5,
		},
		Klaviyo: KlaviyoConfig{
			BaseURL:        "https://a.klaviyo.com/api",
			Revision:       "2024-10-15",
			TimeoutSeconds: 60,
		},
		Sync: SyncConfig{
			IntervalMinutes:    60,
			LockTTLMinutes:     30,
			CampaignWindowDays: 365,
			FlowWindowDays:     30,
			FlowPageCap:        5,
			FallbackDelaySecs:  30,
			DeliverabilityDays: 30,
		},
		LogLevel: "info",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KLAVIYO_BASE_URL"); v != "" {
		cfg.Klaviyo.BaseURL = v
	}
	if v := os.Getenv("KLAVIYO_REVISION"); v != "" {
		cfg.Klaviyo.Revision = v
	}
	if v := os.Getenv("CREDENTIAL_KEY"); v != "" {
		cfg.Crypto.KeyHex = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url (or DATABASE_URL) is required")
	}
	if c.Crypto.KeyHex == "" {
		return fmt.Errorf("config: crypto.key_hex (or CREDENTIAL_KEY) is required")
	}
	if c.Klaviyo.BaseURL == "" {
		return fmt.Errorf("config: klaviyo.base_url is required")
	}
	return nil
}
