package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:       "local",
		LogLevel:          "info",
		DatabaseURL:       "postgres://localhost/storyline",
		DBMinConns:        1,
		DBMaxConns:        4,
		BatchConcurrency:  3,
		EmbeddingProvider: "http",
		EmbeddingEndpoint: "http://127.0.0.1:8844/embed",
		EmbeddingTimeout:  45 * time.Second,
		GeneratorModel:    "gpt-4o-mini",
		GeneratorTimeout:  time.Minute,
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = " " }, "DATABASE_URL"},
		{"min above max", func(c *Config) { c.DBMinConns = 9 }, "cannot exceed"},
		{"concurrency zero", func(c *Config) { c.BatchConcurrency = 0 }, "BATCH_CONCURRENCY"},
		{"concurrency high", func(c *Config) { c.BatchConcurrency = 32 }, "BATCH_CONCURRENCY"},
		{"unknown provider", func(c *Config) { c.EmbeddingProvider = "bert" }, "EMBEDDING_PROVIDER"},
		{"openai without key", func(c *Config) { c.EmbeddingProvider = "OpenAI" }, "OPENAI_API_KEY"},
		{"no generator timeout", func(c *Config) { c.GeneratorTimeout = 0 }, "GENERATOR_TIMEOUT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_NoneProviderNeedsNoEndpoint(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.EmbeddingProvider = "none"
	cfg.EmbeddingEndpoint = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected none provider to validate, got %v", err)
	}
}
