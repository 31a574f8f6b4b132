package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider identifies a reasoning service backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Client is the narrow request/response interface every collaborator call
// goes through. All free-form judgment lives behind it.
type Client interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// Options configures a reasoning collaborator connection.
type Options struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Connector talks to a reasoning service through langchaingo.
type Connector struct {
	llm     llms.Model
	options Options
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating reasoning collaborator connection")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = newOpenAIModel(options)
	case ProviderGemini:
		model, err = newGeminiModel(ctx, options)
	case ProviderClaude:
		model, err = newAnthropicModel(options)
	case ProviderOllama:
		model, err = newOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{llm: model, options: options}, nil
}

// Call sends a single prompt and returns the raw text response.
func (c *Connector) Call(ctx context.Context, prompt string) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}
	if c.options.Provider == ProviderGemini && c.options.Model != "" {
		callOptions = append(callOptions, llms.WithModel(c.options.Model))
	}

	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOptions...)
}

func newOpenAIModel(options Options) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.Model),
		openai.WithToken(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func newGeminiModel(ctx context.Context, options Options) (llms.Model, error) {
	// Model selection happens per call for Gemini; the client itself only
	// needs the key.
	return googleai.New(ctx, googleai.WithAPIKey(options.APIKey))
}

func newAnthropicModel(options Options) (llms.Model, error) {
	return anthropic.New(
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.Model),
	)
}

func newOllamaModel(options Options) (llms.Model, error) {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(options.Model),
	)
}
