package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GenerateRequest is the reasoning model's request body.
type GenerateRequest struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// Usage is the token accounting the reasoning backend reports.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is the reasoning model's response body. Text is expected
// to be a JSON document; the adapter in internal/reasoning validates it.
type GenerateResponse struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// ReasoningClient calls the external reasoning model.
type ReasoningClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewReasoningClient builds a client with a per-call timeout. The API key
// is sent as a bearer token when set.
func NewReasoningClient(baseURL, apiKey string, timeout time.Duration) *ReasoningClient {
	return &ReasoningClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Generate posts a prompt and returns the raw model response.
func (c *ReasoningClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reasoning backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reasoning backend: status %d: %s", resp.StatusCode, body)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("reasoning backend: decode response: %w", err)
	}
	return &out, nil
}
