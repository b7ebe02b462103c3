package llm

import (
	"fmt"

	"github.com/lkraemer/gitscout/internal/config"
	"github.com/lkraemer/gitscout/internal/embed"
)

// NewProvider builds the summary text provider from config.
func NewProvider(cfg config.Summary) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.Model, cfg.OllamaURL), nil
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv), nil
	default:
		return nil, fmt.Errorf("unknown summary provider %q", cfg.Provider)
	}
}

// NewEmbedder builds the embedding provider from config.
func NewEmbedder(cfg config.Embedding) (embed.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.OllamaURL), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.Model, cfg.APIKeyEnv), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
