package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Store backend names.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
)

// Config holds all configuration for serendipity.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Claude  ClaudeConfig  `mapstructure:"claude"`
	API     APIConfig     `mapstructure:"api"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend string       `mapstructure:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Neo4j   Neo4jConfig  `mapstructure:"neo4j"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ClaudeConfig holds Anthropic Claude API settings.
type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// String returns a safe representation of ClaudeConfig with the API key masked.
func (c ClaudeConfig) String() string {
	return fmt.Sprintf("ClaudeConfig{APIKey:%s, Model:%s}", maskAPIKey(c.APIKey), c.Model)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LimitsConfig holds the per-actor fixed-window rate limits. The bulk
// budget is materially stricter, reflecting its higher generation cost.
type LimitsConfig struct {
	AutoPerWindow int           `mapstructure:"auto_per_window"`
	AutoWindow    time.Duration `mapstructure:"auto_window"`
	BulkPerWindow int           `mapstructure:"bulk_per_window"`
	BulkWindow    time.Duration `mapstructure:"bulk_window"`
}

// EngineConfig holds connection-pipeline tuning.
type EngineConfig struct {
	// ClusterTimeout caps one cluster's generation call.
	ClusterTimeout time.Duration `mapstructure:"cluster_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.sqlite.path", filepath.Join(homeDir(), ".serendipity", "notebook.db"))
	v.SetDefault("store.neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("store.neo4j.username", "neo4j")
	v.SetDefault("store.neo4j.database", "neo4j")

	v.SetDefault("claude.model", "claude-haiku-4-5-20251001")

	v.SetDefault("api.listen_addr", ":8080")

	v.SetDefault("limits.auto_per_window", 10)
	v.SetDefault("limits.auto_window", "1m")
	v.SetDefault("limits.bulk_per_window", 3)
	v.SetDefault("limits.bulk_window", "1h")

	v.SetDefault("engine.cluster_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".serendipity"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("SERENDIPITY")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("claude.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("store.backend", "SERENDIPITY_STORE_BACKEND")
	_ = v.BindEnv("store.sqlite.path", "SERENDIPITY_SQLITE_PATH")
	_ = v.BindEnv("store.neo4j.uri", "SERENDIPITY_NEO4J_URI")
	_ = v.BindEnv("store.neo4j.password", "SERENDIPITY_NEO4J_PASSWORD")
	_ = v.BindEnv("api.listen_addr", "SERENDIPITY_API_LISTEN_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must not be empty")
		}
	case BackendNeo4j:
		if c.Store.Neo4j.URI == "" {
			return fmt.Errorf("store.neo4j.uri must not be empty")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendSQLite, BackendNeo4j, c.Store.Backend)
	}
	if c.Claude.Model == "" {
		return fmt.Errorf("claude.model must not be empty")
	}
	if c.Limits.AutoPerWindow <= 0 || c.Limits.BulkPerWindow <= 0 {
		return fmt.Errorf("rate limit budgets must be greater than 0")
	}
	if c.Limits.AutoWindow <= 0 || c.Limits.BulkWindow <= 0 {
		return fmt.Errorf("rate limit windows must be greater than 0")
	}
	if c.Engine.ClusterTimeout <= 0 {
		return fmt.Errorf("engine.cluster_timeout must be greater than 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
