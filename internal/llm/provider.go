// Package llm abstracts the generative text service behind a small
// Provider interface and supplies Ollama, OpenAI and Gemini backends.
package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Provider is the interface for LLM providers. Generate returns the raw
// response text; any error is a transport failure.
type Provider interface {
	Generate(ctx context.Context, messages []Message, maxTokens int) (string, error)
	IsConfigured() bool
}

// Options selects and configures a provider.
type Options struct {
	Provider     string
	Model        string
	OllamaURL    string
	OpenAIModel  string
	OpenAIKeyEnv string
	GeminiModel  string
	GeminiKeyEnv string
	Temperature  float64
}

// CreateProvider creates an LLM provider based on configuration, falling
// back through the remaining providers when the preferred one is not
// available. It returns nil when none is usable.
func CreateProvider(opts Options, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}

	candidates := map[string]func() Provider{
		"ollama": func() Provider { return NewOllamaProvider(opts.Model, opts.OllamaURL, opts.Temperature) },
		"openai": func() Provider { return NewOpenAIProvider(opts.OpenAIModel, opts.OpenAIKeyEnv, opts.Temperature) },
		"gemini": func() Provider { return NewGeminiProvider(opts.GeminiModel, opts.GeminiKeyEnv, opts.Temperature) },
	}
	order := []string{strings.ToLower(opts.Provider)}
	for _, name := range []string{"ollama", "openai", "gemini"} {
		if name != order[0] {
			order = append(order, name)
		}
	}

	for i, name := range order {
		factory, ok := candidates[name]
		if !ok {
			log.Warn("unknown LLM provider", zap.String("provider", name))
			continue
		}
		p := factory()
		if p.IsConfigured() {
			log.Info("using LLM provider", zap.String("provider", name))
			return p
		}
		if i == 0 {
			log.Warn("preferred LLM provider unavailable, trying fallbacks", zap.String("provider", name))
		}
	}

	log.Error("no LLM provider available; start Ollama or set OPENAI_API_KEY / GEMINI_API_KEY")
	return nil
}
