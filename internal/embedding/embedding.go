package embedding

import (
	"context"
	"fmt"

	"github.com/bigballadanny/dwschatbot/internal/config"
)

// NewModel is a factory that creates the embedding client selected by the
// configuration. The provider decides which nested config block is read.
func NewModel(ctx context.Context, cfg config.EmbeddingConfig) (Embedding, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.Model == "" || cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini embedding requires model and apiKey")
		}
		return NewGoogleModel(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		if cfg.OpenAI.Model == "" || cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai embedding requires model and apiKey")
		}
		return NewOpenAIModel(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		if cfg.Ollama.Model == "" {
			return nil, fmt.Errorf("ollama embedding requires model")
		}
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.Address)
	case "huggingface":
		if cfg.HuggingFace.Model == "" || cfg.HuggingFace.APIKey == "" {
			return nil, fmt.Errorf("huggingface embedding requires model and apiKey")
		}
		return NewHuggingFaceModel(cfg.HuggingFace.Model, cfg.HuggingFace.APIKey, cfg.HuggingFace.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
