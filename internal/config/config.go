package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EmbeddingProviderHTTP   = "http"
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderNone   = "none"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	BatchConcurrency int    `envconfig:"BATCH_CONCURRENCY" default:"3"`
	TuningFile       string `envconfig:"TUNING_FILE" default:""`

	EmbeddingProvider string        `envconfig:"EMBEDDING_PROVIDER" default:"http"`
	EmbeddingEndpoint string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingTimeout  time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"45s"`

	GeneratorProvider string        `envconfig:"GENERATOR_PROVIDER" default:"local"`
	GeneratorEndpoint string        `envconfig:"GENERATOR_ENDPOINT" default:"http://127.0.0.1:8845/v1"`
	GeneratorModel    string        `envconfig:"GENERATOR_MODEL" default:"gpt-4o-mini"`
	GeneratorTimeout  time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"60s"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.BatchConcurrency < 1 || c.BatchConcurrency > 8 {
		return fmt.Errorf("BATCH_CONCURRENCY must be between 1 and 8")
	}

	switch c.EmbeddingProviderName() {
	case EmbeddingProviderHTTP:
		if strings.TrimSpace(c.EmbeddingEndpoint) == "" {
			return fmt.Errorf("EMBEDDING_ENDPOINT is required for the http embedding provider")
		}
	case EmbeddingProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider")
		}
	case EmbeddingProviderNone:
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of http, openai, none")
	}
	if c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_TIMEOUT must be > 0")
	}
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(c.GeneratorModel) == "" {
		return fmt.Errorf("GENERATOR_MODEL is required")
	}
	return nil
}

// EmbeddingProviderName returns the normalized provider selector.
func (c *Config) EmbeddingProviderName() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
}
