package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiCaller calls the Gemini API through the genai SDK.
type GeminiCaller struct {
	client *genai.Client
}

// NewGeminiCaller creates a Gemini API client for apiKey.
func NewGeminiCaller(ctx context.Context, apiKey string) (*GeminiCaller, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiCaller{client: client}, nil
}

// Call implements ModelCaller.
func (g *GeminiCaller) Call(ctx context.Context, model string, req Request) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	res, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content (%s): %w", model, err)
	}
	return res.Text(), nil
}
