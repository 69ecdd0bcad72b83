package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func NewAnthropicClient(apiKey, model, baseURL string, timeout time.Duration) *AnthropicClient {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case endpoint == "":
		endpoint = defaultAnthropicEndpoint
	case !strings.HasSuffix(endpoint, "/messages"):
		if strings.HasSuffix(endpoint, "/v1") {
			endpoint += "/messages"
		} else {
			endpoint += "/v1/messages"
		}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		client:   &http.Client{Timeout: timeout},
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
	}
}

func (c *AnthropicClient) Generate(ctx context.Context, r Request) (*Response, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, &APIError{Provider: "anthropic", Body: "api key is required"}
	}
	model := pickModel(r.Model, c.model, "gpt", "gemini")
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system := r.SystemPrompt
	if r.JSONMode {
		// The Messages API has no JSON response mode.
		system = strings.TrimSpace(system + "\n\nRespond with a single valid JSON object and nothing else.")
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: r.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: r.Prompt}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify("anthropic", 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify("anthropic", 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify("anthropic", resp.StatusCode, strings.TrimSpace(string(raw)), nil)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Body: fmt.Sprintf("decode response: %v", err)}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if parsed.Model == "" {
		parsed.Model = model
	}
	return &Response{
		Content:    text.String(),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		Model:      parsed.Model,
		Duration:   time.Since(start),
	}, nil
}
