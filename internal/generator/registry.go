package generator

import (
	"fmt"
	"sort"
	"strings"

	"horse.fit/storyline/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// DefaultProviderName is used when GENERATOR_PROVIDER is unset.
	DefaultProviderName = ProviderLocal
)

// Registry stores generators and resolves a default one.
type Registry struct {
	generators       map[string]Generator
	defaultGenerator string
}

func NewRegistry(defaultGenerator string) *Registry {
	normalizedDefault := normalizeName(defaultGenerator)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}
	return &Registry{
		generators:       make(map[string]Generator),
		defaultGenerator: normalizedDefault,
	}
}

// NewRegistryFromConfig registers the openai and local generators. The local
// one talks to an OpenAI-compatible server at GENERATOR_ENDPOINT.
func NewRegistryFromConfig(cfg *config.Config) *Registry {
	registry := NewRegistry(cfg.GeneratorProvider)

	endpoint := strings.TrimSpace(cfg.GeneratorEndpoint)
	if endpoint == "" {
		endpoint = DefaultLocalEndpoint
	}
	localKey := cfg.OpenAIAPIKey
	if strings.TrimSpace(localKey) == "" {
		localKey = "local"
	}
	_ = registry.Register(NewChatGenerator(ProviderLocal, localKey, endpoint, cfg.GeneratorModel))
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		_ = registry.Register(NewChatGenerator(ProviderOpenAI, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GeneratorModel))
	}
	return registry
}

// Register adds one generator, replacing any with the same name.
func (r *Registry) Register(generator Generator) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if generator == nil {
		return fmt.Errorf("generator is nil")
	}
	name := normalizeName(generator.Name())
	if name == "" {
		return fmt.Errorf("generator name is required")
	}
	r.generators[name] = generator
	return nil
}

// Generator resolves a generator by name. Empty names use the default.
func (r *Registry) Generator(name string) (Generator, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.generators) == 0 {
		return nil, fmt.Errorf("no generators are registered")
	}

	resolved := normalizeName(name)
	if resolved == "" {
		resolved = r.defaultGenerator
	}
	if generator, ok := r.generators[resolved]; ok {
		return generator, nil
	}
	return nil, fmt.Errorf("generator %q is not registered (available: %s)", resolved, strings.Join(r.Names(), ", "))
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
