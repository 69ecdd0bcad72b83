package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient generates text through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, r Request) (*Response, error) {
	model := r.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = c.model
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(r.Temperature)),
	}
	if r.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(r.MaxTokens)
	}
	if r.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(r.SystemPrompt, genai.RoleUser)
	}
	if r.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(r.Prompt), cfg)
	if err != nil {
		return nil, classifyGemini(err)
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &Response{
		Content:    resp.Text(),
		TokensUsed: tokens,
		Model:      model,
		Duration:   time.Since(start),
	}, nil
}

// classifyGemini maps SDK errors that carry an HTTP status through the same
// status rules as the HTTP clients.
func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classify("gemini", apiErr.Code, apiErr.Message, nil)
	}
	return classify("gemini", 0, "", err)
}
