package llms

import (
	"context"

	"github.com/bigballadanny/dwschatbot/internal/llm"
	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/internal/rag/interfaces"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
)

// Client adapts a provider generation client to the pipeline's LLM
// interface. It stamps the configured output-token budget onto every request
// and, when a breaker is supplied, fails fast while the provider is down
// instead of piling up doomed calls.
type Client struct {
	llm       llm.LLM
	breaker   *circuitbreaker.Breaker
	maxTokens int32
}

// NewClient wraps the given provider client. A nil breaker disables the
// fail-fast path.
func NewClient(provider llm.LLM, breaker *circuitbreaker.Breaker, maxTokens int32) *Client {
	return &Client{
		llm:       provider,
		breaker:   breaker,
		maxTokens: maxTokens,
	}
}

// Generate produces an answer for the prompt under the system instruction.
// Provider errors come back unchanged so callers can distinguish
// circuitbreaker.ErrOpen from a real generation failure.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := &models.GenerateRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
	}

	var text string
	call := func() error {
		resp, err := c.llm.GenerateContent(ctx, req)
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// compile-time check to ensure Client implements the LLM interface
var _ interfaces.LLM = (*Client)(nil)
