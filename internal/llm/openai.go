package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model       string
	APIKey      string
	Temperature float64
	endpoint    string
	client      *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider reading its key from
// the apiKeyEnv environment variable.
func NewOpenAIProvider(model, apiKeyEnv string, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		Model:       model,
		APIKey:      os.Getenv(apiKeyEnv),
		Temperature: temperature,
		endpoint:    openAIChatURL,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Generate sends the conversation to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	if o.APIKey == "" {
		return "", errors.New("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    toChatMessages(messages),
		"max_tokens":  maxTokens,
		"temperature": o.Temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", errors.New("no choices in OpenAI response")
	}

	return result.Choices[0].Message.Content, nil
}
