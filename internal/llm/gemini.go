package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls Google's Gemini API through the genai SDK.
type GeminiProvider struct {
	Model       string
	Temperature float64
	client      *genai.Client
}

// NewGeminiProvider creates a Gemini provider reading its key from the
// apiKeyEnv environment variable. A provider without a key reports
// IsConfigured() == false.
func NewGeminiProvider(model, apiKeyEnv string, temperature float64) *GeminiProvider {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	p := &GeminiProvider{Model: model, Temperature: temperature}

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return p
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err == nil {
		p.client = client
	}
	return p
}

// IsConfigured reports whether a client could be created.
func (g *GeminiProvider) IsConfigured() bool {
	return g.client != nil
}

// Generate sends the conversation to Gemini. System messages become the
// system instruction; assistant messages are sent with the model role.
func (g *GeminiProvider) Generate(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if g.client == nil {
		return "", errors.New("Gemini API key not configured")
	}

	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return resp.Text(), nil
}
