package provider

import (
	"fmt"
	"strings"

	"stmtsep/internal/config"
)

// New builds the configured provider. Remote endpoints default to the
// OpenAI-compatible protocol; gemini models route through the GenAI SDK.
func New(cfg *config.Config) (Provider, error) {
	p := cfg.Provider

	switch Kind(p.Kind) {
	case KindNone, "":
		return NewNullProvider(), nil

	case KindLocal:
		return NewOllamaClient(OllamaConfig{
			BaseURL: p.Endpoint,
			Model:   p.Model,
			Timeout: cfg.ProviderTimeout(),
		}), nil

	case KindRemote:
		if strings.HasPrefix(strings.ToLower(p.Model), "gemini") {
			return NewGeminiClient(GeminiConfig{
				APIKey:  p.APIKey,
				Model:   p.Model,
				Timeout: cfg.ProviderTimeout(),
			})
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  p.APIKey,
			BaseURL: p.Endpoint,
			Model:   p.Model,
			Timeout: cfg.ProviderTimeout(),
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider kind: %s", p.Kind)
	}
}
