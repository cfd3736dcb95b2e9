package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Engine         EngineConfig         `yaml:"engine"`
	Account        AccountConfig        `yaml:"account"`
	Cache          CacheConfig          `yaml:"cache"`
	Feed           FeedConfig           `yaml:"feed"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// EngineConfig holds bid engine and sweeper settings.
type EngineConfig struct {
	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// LockTimeout bounds how long a bid or settlement waits for an
	// auction's lock before giving up.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// BidRetries is how many times a bid is retried on a version conflict.
	BidRetries int `yaml:"bid_retries"`
}

// AccountConfig holds account settings.
type AccountConfig struct {
	// WelcomeBonus is the number of coins credited on registration.
	WelcomeBonus int `yaml:"welcome_bonus"`
}

// CacheConfig holds the optional Redis current-bid cache settings.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FeedConfig holds the optional NATS ledger feed settings.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionhub",
			ServiceVersion: "0.1.0",
		},
		Engine: EngineConfig{
			SweepInterval: time.Minute,
			LockTimeout:   5 * time.Second,
			BidRetries:    3,
		},
		Account: AccountConfig{
			WelcomeBonus: 1000,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
		},
		Feed: FeedConfig{
			URL:    "nats://localhost:4222",
			Stream: "LEDGER_EVENTS",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionhub-sweeper",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}
	if c.Engine.SweepInterval <= 0 {
		return fmt.Errorf("engine.sweep_interval must be positive, got %s", c.Engine.SweepInterval)
	}
	if c.Engine.LockTimeout <= 0 {
		return fmt.Errorf("engine.lock_timeout must be positive, got %s", c.Engine.LockTimeout)
	}
	if c.Engine.BidRetries < 1 {
		return fmt.Errorf("engine.bid_retries must be at least 1, got %d", c.Engine.BidRetries)
	}
	if c.Account.WelcomeBonus < 0 {
		return fmt.Errorf("account.welcome_bonus must be non-negative, got %d", c.Account.WelcomeBonus)
	}
	return nil
}
