// ABOUTME: Gemini completer backed by the genai client
// ABOUTME: Requests JSON responses and classifies API failures
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

type geminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGemini creates a Completer backed by the Gemini API in JSON response mode.
func NewGemini(ctx context.Context, cfg Config) (Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	return &geminiCompleter{client: client, model: model, maxTokens: cfg.MaxTokens}, nil
}

func (g *geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		CandidateCount:    1,
		ResponseMIMEType:  "application/json",
	}
	if g.maxTokens > 0 {
		gc.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini complete: %w", classifyStatus(err, apiErr.Code))
		}
		return "", fmt.Errorf("gemini complete: %w", classifyNet(err))
	}
	return resp.Text(), nil
}

func (g *geminiCompleter) Model() string {
	return g.model
}
