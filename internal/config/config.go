// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SURI_HOST" yaml:"host"`
	Port int    `envconfig:"SURI_PORT" yaml:"port"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Provider configuration (embedding + generation)
	Provider ProviderConfig `yaml:"provider"`

	// Redis configuration (cache, docstore, histories)
	Redis RedisConfig `yaml:"redis"`

	// Dispatcher configuration (ingestion trigger bus)
	Dispatcher DispatcherConfig `yaml:"dispatcher"`

	// Retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Accuracy configuration
	Accuracy AccuracyConfig `yaml:"accuracy"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string        `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey     string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	Collection string        `envconfig:"QDRANT_COLLECTION" yaml:"collection"`
	Timeout    time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// ProviderConfig holds embedding and generation provider settings.
type ProviderConfig struct {
	APIKey         string  `envconfig:"OPENAI_API_KEY" yaml:"api_key"`
	BaseURL        string  `envconfig:"SURI_PROVIDER_BASE_URL" yaml:"base_url"`
	EmbedModel     string  `envconfig:"SURI_EMBED_MODEL" yaml:"embed_model"`
	EmbedDim       int     `envconfig:"SURI_EMBED_DIM" yaml:"embed_dim"`
	EmbedBatchSize int     `envconfig:"SURI_EMBED_BATCH_SIZE" yaml:"embed_batch_size"`
	ChatModel      string  `envconfig:"SURI_CHAT_MODEL" yaml:"chat_model"`
	Temperature    float32 `envconfig:"SURI_TEMPERATURE" yaml:"temperature"`
	MaxTokens      int     `envconfig:"SURI_MAX_TOKENS" yaml:"max_tokens"`
	CacheSize      int     `envconfig:"SURI_EMBED_CACHE_SIZE" yaml:"cache_size"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL     string `envconfig:"SURI_REDIS_URL" yaml:"url"`
	Enabled bool   `envconfig:"SURI_REDIS_ENABLED" yaml:"enabled"`
}

// DispatcherConfig holds ingestion dispatcher settings.
type DispatcherConfig struct {
	Type         string `envconfig:"SURI_DISPATCHER_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SURI_KAFKA_BROKERS" yaml:"kafka_brokers"`
	Topic        string `envconfig:"SURI_DISPATCHER_TOPIC" yaml:"topic"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	DefaultTopK             int           `envconfig:"SURI_DEFAULT_TOP_K" yaml:"default_top_k"`
	DefaultMinScore         float32       `envconfig:"SURI_DEFAULT_MIN_SCORE" yaml:"default_min_score"`
	MaxConcurrentPartitions int           `envconfig:"SURI_MAX_CONCURRENT_PARTITIONS" yaml:"max_concurrent_partitions"`
	StatsCacheTTL           time.Duration `envconfig:"SURI_STATS_CACHE_TTL" yaml:"stats_cache_ttl"`
}

// AccuracyConfig holds accuracy-suite settings.
type AccuracyConfig struct {
	ExecutorRate   float64 `envconfig:"SURI_ACCURACY_RATE" yaml:"executor_rate"`
	ValueTolerance float64 `envconfig:"SURI_VALUE_TOLERANCE" yaml:"value_tolerance"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SURI_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SURI_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey      string `envconfig:"SURI_API_KEY" yaml:"api_key"`
	RateLimit   int    `envconfig:"SURI_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"SURI_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Qdrant = QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "suri_chunks",
		Timeout:    30 * time.Second,
	}

	cfg.Provider = ProviderConfig{
		EmbedModel:     "text-embedding-3-large",
		EmbedDim:       3072,
		EmbedBatchSize: 100,
		ChatModel:      "gpt-4o-mini",
		Temperature:    0.1,
		MaxTokens:      1024,
		CacheSize:      10000,
	}

	cfg.Redis = RedisConfig{
		URL:     "redis://localhost:6379",
		Enabled: false,
	}

	cfg.Dispatcher = DispatcherConfig{
		Type:  "memory",
		Topic: "suri.document.process",
	}

	cfg.Retrieval = RetrievalConfig{
		DefaultTopK:             5,
		DefaultMinScore:         0.3,
		MaxConcurrentPartitions: 16,
		StatsCacheTTL:           24 * time.Hour,
	}

	cfg.Accuracy = AccuracyConfig{
		ExecutorRate:   2, // tests per second against the provider
		ValueTolerance: 0.02,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Provider.EmbedDim < 1 {
		errs = append(errs, "embed_dim must be positive")
	}

	if c.Provider.EmbedBatchSize < 1 || c.Provider.EmbedBatchSize > 2048 {
		errs = append(errs, "embed_batch_size must be between 1 and 2048")
	}

	validDispatchers := map[string]bool{"memory": true, "kafka": true}
	if !validDispatchers[c.Dispatcher.Type] {
		errs = append(errs, fmt.Sprintf("invalid dispatcher type: %s (must be memory or kafka)", c.Dispatcher.Type))
	}

	if c.Dispatcher.Type == "kafka" && c.Dispatcher.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers required when dispatcher type is kafka")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Retrieval.DefaultTopK < 1 {
		errs = append(errs, "default_top_k must be positive")
	}

	if c.Retrieval.DefaultMinScore < 0 || c.Retrieval.DefaultMinScore > 1 {
		errs = append(errs, "default_min_score must be between 0 and 1")
	}

	if c.Retrieval.MaxConcurrentPartitions < 1 {
		errs = append(errs, "max_concurrent_partitions must be positive")
	}

	if c.Accuracy.ValueTolerance < 0 {
		errs = append(errs, "value_tolerance must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaBrokerList splits the configured broker string.
func (c *Config) KafkaBrokerList() []string {
	if c.Dispatcher.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.Dispatcher.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
