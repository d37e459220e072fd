// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "DOCSEARCH_"

// Index sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AllowOrigins lists the sites allowed to call the API from a browser.
	AllowOrigins []string `yaml:"allowOrigins"`
	// AdminTokens holds SHA-256 digests of the tokens accepted by the
	// mutating endpoints. Empty leaves them open.
	AdminTokens []string `yaml:"adminTokens"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexBuilt      string `yaml:"indexBuilt"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig says where the search index lives and which generator
// extension versions a loaded index must carry.
type IndexConfig struct {
	Source             string         `yaml:"source"`
	Path               string         `yaml:"path"`
	Project            string         `yaml:"project"`
	ExpectedEnvVersion map[string]int `yaml:"expectedEnvVersion"`
	SourceSuffix       string         `yaml:"sourceSuffix"`
	BuildWorkers       int            `yaml:"buildWorkers"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Timeout      time.Duration `yaml:"timeout"`
	RateLimit    float64       `yaml:"rateLimit"`
	RateBurst    int           `yaml:"rateBurst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls request span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultEnvVersion is the set of extension versions recorded by the
// generator release whose indices this service reads.
func DefaultEnvVersion() map[string]int {
	return map[string]int{
		"sphinx":                    56,
		"sphinx.domains.c":          2,
		"sphinx.domains.changeset":  1,
		"sphinx.domains.citation":   1,
		"sphinx.domains.cpp":        3,
		"sphinx.domains.index":      1,
		"sphinx.domains.javascript": 2,
		"sphinx.domains.math":       2,
		"sphinx.domains.python":     2,
		"sphinx.domains.rst":        2,
		"sphinx.domains.std":        2,
	}
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch",
			Topics: KafkaTopics{
				IndexBuilt:      "docsearch.index-built",
				AnalyticsEvents: "docsearch.search-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			Source:             SourceFile,
			Path:               "searchindex.js",
			Project:            "default",
			ExpectedEnvVersion: DefaultEnvVersion(),
			SourceSuffix:       ".rst",
			BuildWorkers:       4,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
			Timeout:      2 * time.Second,
			RateLimit:    50,
			RateBurst:    100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Index.Source {
	case SourceFile:
		if c.Index.Path == "" {
			return fmt.Errorf("config: index.path is required for source %q", SourceFile)
		}
	case SourcePostgres:
		if c.Index.Project == "" {
			return fmt.Errorf("config: index.project is required for source %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("config: unknown index.source %q", c.Index.Source)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults <= 0 {
		return fmt.Errorf("config: search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("config: search.defaultLimit %d exceeds search.maxResults %d",
			c.Search.DefaultLimit, c.Search.MaxResults)
	}
	if c.Index.BuildWorkers <= 0 {
		c.Index.BuildWorkers = 1
	}
	return nil
}

// applyEnvOverrides reads DOCSEARCH_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv(envPrefix + "SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv(envPrefix + "SERVER_ADMIN_TOKENS"); v != "" {
		cfg.Server.AdminTokens = strings.Split(v, ",")
	}

	setString("POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("POSTGRES_PORT", &cfg.Postgres.Port)
	setString("POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("POSTGRES_USER", &cfg.Postgres.User)
	setString("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	setBool("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv(envPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)

	setString("INDEX_SOURCE", &cfg.Index.Source)
	setString("INDEX_PATH", &cfg.Index.Path)
	setString("INDEX_PROJECT", &cfg.Index.Project)

	setInt("SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	setInt("SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)

	setString("LOGGING_LEVEL", &cfg.Logging.Level)
	setString("LOGGING_FORMAT", &cfg.Logging.Format)

	setBool("TRACING_ENABLED", &cfg.Tracing.Enabled)
	setBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("METRICS_PORT", &cfg.Metrics.Port)
}

func setString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func setInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
