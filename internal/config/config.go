// Package config provides configuration management for the stockwatch service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Explore     ExploreConfig  `mapstructure:"explore"`
	Market      MarketConfig   `mapstructure:"market"`
	News        NewsConfig     `mapstructure:"news"`
	LLM         LLMConfig      `mapstructure:"llm"`
	Log         LogConfig      `mapstructure:"log"`
	Credentials Credentials    `mapstructure:"-" json:"-"` // Loaded separately
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	DefaultUser    string        `mapstructure:"default_user"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite3, postgres
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration. An empty URL disables Redis.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// ExploreConfig holds explore cache refresher configuration.
type ExploreConfig struct {
	UniverseFile string        `mapstructure:"universe_file"`
	Interval     time.Duration `mapstructure:"interval"`
	SampleCap    int           `mapstructure:"sample_cap"`
	Sort         string        `mapstructure:"sort"` // symbol, price
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// MarketConfig holds price provider configuration.
type MarketConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Lookback      string        `mapstructure:"lookback"`
	MaxBatch      int           `mapstructure:"max_batch"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// NewsConfig holds news provider configuration.
type NewsConfig struct {
	LookbackDays    int    `mapstructure:"lookback_days"`
	DefaultCategory string `mapstructure:"default_category"`
	MaxArticles     int    `mapstructure:"max_articles"`
	RateLimit       int    `mapstructure:"rate_limit"` // requests per minute
}

// LLMConfig holds summarizer configuration.
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"` // openai, anthropic, or empty to disable
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	GuardrailFile string        `mapstructure:"guardrail_file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	JSON     bool   `mapstructure:"json"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Finnhub   APIKey `mapstructure:"finnhub"`
	OpenAI    APIKey `mapstructure:"openai"`
	Anthropic APIKey `mapstructure:"anthropic"`
}

// APIKey holds a single provider key.
type APIKey struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	if dir := os.Getenv("STOCKWATCH_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "configs"
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.default_user", "default")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "stockwatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.url", "")

	v.SetDefault("explore.universe_file", "data/universe.txt")
	v.SetDefault("explore.interval", 10*time.Minute)
	v.SetDefault("explore.sample_cap", 200)
	v.SetDefault("explore.sort", "symbol")
	v.SetDefault("explore.run_timeout", 2*time.Minute)
	v.SetDefault("explore.lock_ttl", 5*time.Minute)

	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.timeout", 20*time.Second)
	v.SetDefault("market.lookback", "5d")
	v.SetDefault("market.max_batch", 250)
	v.SetDefault("market.retry_attempts", 3)

	v.SetDefault("news.lookback_days", 7)
	v.SetDefault("news.default_category", "general")
	v.SetDefault("news.max_articles", 20)
	v.SetDefault("news.rate_limit", 60)

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.cache_ttl", 5*time.Minute)
	v.SetDefault("llm.guardrail_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", "logs/stockwatch.log")
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	// STOCKWATCH_EXPLORE_INTERVAL -> explore.interval
	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found: write a template and run on defaults
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Credentials usually come from the environment
			return nil
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Credentials.Finnhub.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Credentials.Anthropic.APIKey = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if c.Server.DefaultUser == "" {
		return fmt.Errorf("server.default_user must not be empty")
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s (must be 'sqlite3' or 'postgres')", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}

	if c.Explore.UniverseFile == "" {
		return fmt.Errorf("explore.universe_file must not be empty")
	}
	if c.Explore.Interval < time.Minute {
		return fmt.Errorf("explore.interval must be at least 1m, got %s", c.Explore.Interval)
	}
	if c.Explore.SampleCap <= 0 {
		return fmt.Errorf("explore.sample_cap must be positive")
	}
	switch c.Explore.Sort {
	case "symbol", "price":
	default:
		return fmt.Errorf("invalid explore.sort: %s (must be 'symbol' or 'price')", c.Explore.Sort)
	}

	if c.Market.MaxBatch <= 0 {
		return fmt.Errorf("market.max_batch must be positive")
	}
	if c.Market.RetryAttempts <= 0 {
		return fmt.Errorf("market.retry_attempts must be positive")
	}

	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("invalid llm.provider: %s (must be 'openai', 'anthropic' or empty)", c.LLM.Provider)
	}

	return nil
}

// LLMAPIKey returns the API key of the configured LLM provider.
func (c *Config) LLMAPIKey() string {
	switch c.LLM.Provider {
	case "openai":
		return c.Credentials.OpenAI.APIKey
	case "anthropic":
		return c.Credentials.Anthropic.APIKey
	}
	return ""
}

// LLMEnabled returns true if a summarizer provider is configured with a key.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != "" && c.LLMAPIKey() != ""
}
