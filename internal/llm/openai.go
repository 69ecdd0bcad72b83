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

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

type OpenAIClient struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []openAIChatMessage `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *openAIFormat       `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration) *OpenAIClient {
	endpoint := strings.TrimSpace(baseURL)
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	} else {
		endpoint = strings.TrimRight(endpoint, "/")
		if !strings.HasSuffix(endpoint, "/chat/completions") {
			if strings.HasSuffix(endpoint, "/v1") {
				endpoint += "/chat/completions"
			} else {
				endpoint += "/v1/chat/completions"
			}
		}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		client:   &http.Client{Timeout: timeout},
		apiKey:   apiKey,
		model:    model,
		endpoint: endpoint,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, r Request) (*Response, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, &APIError{Provider: "openai", Body: "api key is required"}
	}
	model := pickModel(r.Model, c.model, "claude", "gemini")

	var messages []openAIChatMessage
	if r.SystemPrompt != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: r.SystemPrompt})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: r.Prompt})

	reqBody := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	if r.JSONMode {
		reqBody.ResponseFormat = &openAIFormat{Type: "json_object"}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify("openai", 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify("openai", 0, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify("openai", resp.StatusCode, strings.TrimSpace(string(raw)), nil)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: "response has no choices"}
	}
	if parsed.Model == "" {
		parsed.Model = model
	}
	return &Response{
		Content:    parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		Model:      parsed.Model,
		Duration:   time.Since(start),
	}, nil
}
