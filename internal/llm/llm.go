package llm

import (
	"context"
	"fmt"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/internal/models"
)

// LLM is the common interface every generation provider implements.
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// NewClient is a factory that creates the generation client selected by the
// configuration. The provider decides which nested config block is read.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.Model == "" || cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires model and apiKey")
		}
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		if cfg.OpenAI.Model == "" || cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires model and apiKey")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		if cfg.Ollama.Model == "" {
			return nil, fmt.Errorf("ollama provider requires model")
		}
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.Address)
	case "huggingface":
		if cfg.HuggingFace.Model == "" || cfg.HuggingFace.APIKey == "" {
			return nil, fmt.Errorf("huggingface provider requires model and apiKey")
		}
		return NewHuggingFace(cfg.HuggingFace.Model, cfg.HuggingFace.APIKey, cfg.HuggingFace.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
