// Package embedding turns article text into vectors for similarity search.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/storyline/internal/config"
	"horse.fit/storyline/internal/similarity"
)

// Provider returns one embedding per text. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NewFromConfig builds the configured provider. The "none" provider yields a
// nil Provider and no error.
func NewFromConfig(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	switch cfg.EmbeddingProviderName() {
	case config.EmbeddingProviderHTTP:
		return NewHTTPProvider(cfg.EmbeddingEndpoint, cfg.EmbeddingModel, cfg.EmbeddingTimeout), nil
	case config.EmbeddingProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingTimeout), nil
	case config.EmbeddingProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// Input joins title and body the way every provider sees them.
func Input(title, dek, body string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{title, dek, body} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n\n")
}

func checkVector(values []float64) ([]float64, error) {
	if len(values) != similarity.Dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", similarity.Dimensions, len(values))
	}
	return values, nil
}
