package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig selects the vision model provider
type LLMConfig struct {
	Provider          string  `mapstructure:"provider"` // "openai", "anthropic" or "none"
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxRetries        int     `mapstructure:"max_retries"`
}

// ScraperConfig tunes page fetching
type ScraperConfig struct {
	UserAgents   []string      `mapstructure:"user_agents"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	Parallelism  int           `mapstructure:"parallelism"`
	RandomDelay  time.Duration `mapstructure:"random_delay"`
}

// ExtractionConfig holds per-strategy deadlines. A zero overall timeout
// leaves the caller's context in charge.
type ExtractionConfig struct {
	LLMTimeout     time.Duration `mapstructure:"llm_timeout"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`
}

// QuotaConfig holds tier limits and the counter store
type QuotaConfig struct {
	Store    string         `mapstructure:"store"` // "memory", "redis" or "postgres"
	Free     int            `mapstructure:"free"`
	Pro      int            `mapstructure:"pro"`
	Premium  int            `mapstructure:"premium"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig holds a connection string
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CatalogConfig points at the product catalog. An empty DSN disables saving.
type CatalogConfig struct {
	DSN string `mapstructure:"dsn"`
}

// AgentConfig tunes the agent manager
type AgentConfig struct {
	HistorySize int `mapstructure:"history_size"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/productinfo/")

	// PRODUCTINFO_QUOTA_REDIS_ADDRESS -> quota.redis.address
	v.SetEnvPrefix("PRODUCTINFO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key gets one so that
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	// LLM defaults
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.burst", 4)
	v.SetDefault("llm.max_retries", 2)

	// Scraper defaults
	v.SetDefault("scraper.user_agents", []string{})
	v.SetDefault("scraper.max_body_bytes", 2<<20)
	v.SetDefault("scraper.parallelism", 4)
	v.SetDefault("scraper.random_delay", "0s")

	// Extraction defaults
	v.SetDefault("extraction.llm_timeout", "30s")
	v.SetDefault("extraction.http_timeout", "15s")
	v.SetDefault("extraction.overall_timeout", "0s")

	// Quota defaults
	v.SetDefault("quota.store", "memory")
	v.SetDefault("quota.free", 5)
	v.SetDefault("quota.pro", 20)
	v.SetDefault("quota.premium", 50)
	v.SetDefault("quota.redis.address", "")
	v.SetDefault("quota.redis.password", "")
	v.SetDefault("quota.redis.db", 0)
	v.SetDefault("quota.postgres.dsn", "")

	v.SetDefault("catalog.dsn", "")
	v.SetDefault("agent.history_size", 256)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.LLM.Provider {
	case "openai", "anthropic":
		if config.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key is required for provider %q (set PRODUCTINFO_LLM_API_KEY)", config.LLM.Provider)
		}
	case "none":
	default:
		return fmt.Errorf("llm provider must be 'openai', 'anthropic' or 'none', got: %s", config.LLM.Provider)
	}

	switch config.Quota.Store {
	case "memory":
	case "redis":
		if config.Quota.Redis.Address == "" {
			return errors.New("redis address is required when quota store is 'redis'")
		}
	case "postgres":
		if config.Quota.Postgres.DSN == "" {
			return errors.New("postgres dsn is required when quota store is 'postgres'")
		}
	default:
		return fmt.Errorf("quota store must be 'memory', 'redis' or 'postgres', got: %s", config.Quota.Store)
	}

	if config.Quota.Free < 1 || config.Quota.Pro < 1 || config.Quota.Premium < 1 {
		return errors.New("quota limits must be positive")
	}

	if config.Extraction.LLMTimeout <= 0 || config.Extraction.HTTPTimeout <= 0 {
		return errors.New("strategy timeouts must be positive")
	}
	if config.Extraction.OverallTimeout < 0 {
		return errors.New("overall timeout must not be negative")
	}

	return nil
}
