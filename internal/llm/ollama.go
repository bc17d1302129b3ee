package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

// Ollama is an LLM client for a local or remote Ollama server.
type Ollama struct {
	client *olla.Client
	model  string
}

// NewOllama creates a new Ollama client. An empty address defaults to the
// standard local server.
func NewOllama(model, address string) (*Ollama, error) {
	if address == "" {
		address = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama address: %w", err)
	}

	// Local models can be slow to answer, so the timeout is generous.
	hc := &http.Client{Timeout: 120 * time.Second}

	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent sends a non-streaming generation request to Ollama.
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	stream := false
	genReq := &olla.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: &stream,
	}
	if req.MaxTokens > 0 {
		genReq.Options = map[string]interface{}{
			"num_predict": int(req.MaxTokens),
		}
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, genReq, func(resp olla.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}

	return &models.GenerateResponse{Text: sb.String()}, nil
}

// compile-time check to ensure Ollama implements the LLM interface
var _ LLM = (*Ollama)(nil)
