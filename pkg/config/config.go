package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the repository query engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values for fields
// that support both. Secrets (the database password) must only come from
// environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Query execution configuration
	Query QueryConfig `yaml:"query"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host                string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port                int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User                string `yaml:"user" env:"PGUSER" env-default:"postgres"`
	Password            string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database            string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	SSLMode             string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections      int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxConnLifetimeMins int    `yaml:"max_conn_lifetime_minutes" env:"PGMAX_CONN_LIFETIME_MINUTES" env-default:"60"`
	MaxConnIdleTimeMins int    `yaml:"max_conn_idle_time_minutes" env:"PGMAX_CONN_IDLE_TIME_MINUTES" env-default:"30"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	// StreamFetchSize is the number of rows fetched per round trip when a
	// repository method streams results.
	StreamFetchSize int `yaml:"stream_fetch_size" env:"QUERY_STREAM_FETCH_SIZE" env-default:"256"`

	// LogParameterValues controls whether bound parameter values appear in
	// debug logs. Values are redacted when disabled.
	LogParameterValues bool `yaml:"log_parameter_values" env:"QUERY_LOG_PARAMETER_VALUES" env-default:"false"`

	// SlowQueryMillis is the execution time above which a query is logged at
	// warn level. Zero disables slow query logging.
	SlowQueryMillis int `yaml:"slow_query_millis" env:"QUERY_SLOW_QUERY_MILLIS" env-default:"0"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides. When the file does not exist, configuration comes from
// environment variables alone. Secrets (PGPASSWORD) must come from
// environment variables (yaml:"-" fields).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive, got %d", c.Database.MaxConnections)
	}
	if c.Query.StreamFetchSize <= 0 {
		return fmt.Errorf("query stream_fetch_size must be positive, got %d", c.Query.StreamFetchSize)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
