// Package config loads sheetflow settings from defaults, an optional YAML
// file and SHEETFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	DLQ      DLQConfig      `mapstructure:"dlq"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Type           string         `mapstructure:"type"`
	URL            string         `mapstructure:"url"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
	SQLite         SQLiteConfig   `mapstructure:"sqlite"`
	MinConns       int32          `mapstructure:"min_conns"`
	MaxConns       int32          `mapstructure:"max_conns"`
	AcquireTimeout time.Duration  `mapstructure:"acquire_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PipelineConfig struct {
	BatchSize               int     `mapstructure:"batch_size"`
	TestLimit               int     `mapstructure:"test_limit"`
	MaxWorkers              int     `mapstructure:"max_workers"`
	Source                  string  `mapstructure:"source"`
	SourceType              string  `mapstructure:"source_type"`
	DecimalCommaMaxFraction int     `mapstructure:"decimal_comma_max_fraction"`
	ErrorRateThreshold      float64 `mapstructure:"error_rate_threshold"`
}

type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BasePath string `mapstructure:"base_path"`
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type MetricsConfig struct {
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "sheetflow")
	v.SetDefault("database.postgres.user", "sheetflow")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.sqlite.path", "sheetflow.db")
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.acquire_timeout", "30s")
	v.SetDefault("pipeline.batch_size", 2000)
	v.SetDefault("pipeline.test_limit", 100)
	v.SetDefault("pipeline.max_workers", 4)
	v.SetDefault("pipeline.source", "google_sheets")
	v.SetDefault("pipeline.source_type", "live")
	v.SetDefault("pipeline.decimal_comma_max_fraction", 3)
	v.SetDefault("pipeline.error_rate_threshold", 0.1)
	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.base_path", "/var/lib/sheetflow/dlq")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.job", "sheetflow")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sheetflow")
	}

	// Environment variables override (SHEETFLOW_DATABASE_TYPE, etc.)
	v.SetEnvPrefix("SHEETFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// The connection string deployments already export.
	if err := v.BindEnv("database.url", "SHEETFLOW_DATABASE_URL", "POSTGRES_URI"); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Database.Type) {
	case "postgres", "postgresql":
		if c.Database.URL == "" && c.Database.Postgres.Host == "" {
			problems = append(problems, "database.url or database.postgres.host is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			problems = append(problems, "database.sqlite.path is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.type %q is not postgres or sqlite", c.Database.Type))
	}
	if c.Database.MaxConns <= 0 {
		problems = append(problems, "database.max_conns must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "database.min_conns must be between 0 and max_conns")
	}
	if c.Database.AcquireTimeout <= 0 {
		problems = append(problems, "database.acquire_timeout must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		problems = append(problems, "pipeline.batch_size must be positive")
	}
	if c.Pipeline.TestLimit <= 0 {
		problems = append(problems, "pipeline.test_limit must be positive")
	}
	if c.Pipeline.MaxWorkers <= 0 {
		problems = append(problems, "pipeline.max_workers must be positive")
	}
	if c.Pipeline.Source == "" {
		problems = append(problems, "pipeline.source is required")
	}
	if c.Pipeline.DecimalCommaMaxFraction < 0 {
		problems = append(problems, "pipeline.decimal_comma_max_fraction must not be negative")
	}
	if c.Pipeline.ErrorRateThreshold < 0 || c.Pipeline.ErrorRateThreshold > 1 {
		problems = append(problems, "pipeline.error_rate_threshold must be between 0 and 1")
	}
	if c.DLQ.Enabled && c.DLQ.BasePath == "" {
		problems = append(problems, "dlq.base_path is required when dlq is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required when nats is enabled")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		problems = append(problems, "redis.url is required when redis is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// PostgresURL returns database.url, or a URL assembled from the
// database.postgres section when it is empty.
func (c *DatabaseConfig) PostgresURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Postgres.Host + ":" + strconv.Itoa(c.Postgres.Port),
		Path:     "/" + c.Postgres.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}
	if c.Postgres.Password != "" {
		u.User = url.UserPassword(c.Postgres.User, c.Postgres.Password)
	} else if c.Postgres.User != "" {
		u.User = url.User(c.Postgres.User)
	}
	return u.String()
}
