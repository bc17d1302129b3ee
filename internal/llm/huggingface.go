package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co/models/"

// HuggingFace is an LLM client for the Hugging Face Inference API. Hosted
// text-generation models take a flat prompt, so the system preamble and the
// user prompt are joined before the call.
type HuggingFace struct {
	client  *http.Client
	model   string
	apiKey  string
	baseURL string
}

// NewHuggingFace creates a new Hugging Face client. An empty baseURL targets
// the hosted Inference API; setting it points the client at a self-hosted
// inference endpoint.
func NewHuggingFace(model, apiKey, baseURL string) (*HuggingFace, error) {
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	return &HuggingFace{
		client:  &http.Client{Timeout: 120 * time.Second},
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

// GenerateContent sends a text-generation request and returns the first
// generated sequence.
func (h *HuggingFace) GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	parameters := map[string]interface{}{
		"return_full_text": false,
	}
	if req.MaxTokens > 0 {
		parameters["max_new_tokens"] = req.MaxTokens
	}

	payload, err := json.Marshal(map[string]interface{}{
		"inputs":     prompt,
		"parameters": parameters,
		"options":    map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+h.model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("hugging face returned status %d: %s", resp.StatusCode, body)
	}

	var hfResp []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hfResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(hfResp) == 0 {
		return nil, fmt.Errorf("no generated text returned")
	}

	return &models.GenerateResponse{Text: hfResp[0].GeneratedText}, nil
}

// compile-time check to ensure HuggingFace implements the LLM interface
var _ LLM = (*HuggingFace)(nil)
