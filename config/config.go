package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Collection CollectionConfig `yaml:"collection"`
	Log        LogConfig        `yaml:"log"`
	Seed       SeedConfig       `yaml:"seed"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                   int           `yaml:"port"`
	RateLimitPerSec        float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst         int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds        int           `yaml:"cache_ttl_seconds"`
	CacheTTL               time.Duration `yaml:"-"`
	ShutdownTimeoutSeconds int           `yaml:"shutdown_timeout_seconds"`
	ShutdownTimeout        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite or postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	EnforceAppendOnly      bool   `yaml:"enforce_append_only"`
}

// CollectionConfig holds the collection-request policy.
type CollectionConfig struct {
	// ThresholdPercentage is the fill level at or above which a collection is requested.
	ThresholdPercentage float64 `yaml:"threshold_percentage"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SeedConfig lists the stations created on an empty database.
type SeedConfig struct {
	OnStart  bool     `yaml:"on_start"`
	Stations []string `yaml:"stations"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	// Defaults are always valid.
	_ = cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 5
	}
	cfg.Server.ShutdownTimeout = time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second

	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = DriverSQLite
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver %q is not supported (use %q or %q)", cfg.Database.Driver, DriverSQLite, DriverPostgres)
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Driver == DriverPostgres {
			return fmt.Errorf("database.dsn is required for the %s driver", DriverPostgres)
		}
		cfg.Database.DSN = "file:stations.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Collection.ThresholdPercentage == 0 {
		cfg.Collection.ThresholdPercentage = 80
	}
	if t := cfg.Collection.ThresholdPercentage; math.IsNaN(t) || t <= 0 || t > 100 {
		return fmt.Errorf("collection.threshold_percentage must be in (0, 100], got %v", t)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if len(cfg.Seed.Stations) == 0 {
		cfg.Seed.Stations = []string{"Estação A", "Estação B", "Estação C"}
	}
	return nil
}
