package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/TheMichaelB/jobhunt/internal/config"
)

// GenerateOptions bounds a single model call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// Model is an opaque text completion service. An empty reply is valid.
type Model interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// LangChainModel adapts any langchaingo model.
type LangChainModel struct {
	llm llms.Model
}

// NewLangChainModel wraps m.
func NewLangChainModel(m llms.Model) *LangChainModel {
	return &LangChainModel{llm: m}
}

// Generate sends one prompt and returns the completion text.
func (m *LangChainModel) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var callOpts []llms.CallOption
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))

	return llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, callOpts...)
}

// NewModel builds the configured provider client.
func NewModel(ctx context.Context, cfg config.LLMConfig) (*LangChainModel, error) {
	switch cfg.Provider {
	case "googleai", "":
		return NewGoogleAIModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewGoogleAIModel creates a Gemini client.
func NewGoogleAIModel(ctx context.Context, cfg config.LLMConfig) (*LangChainModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is required")
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai client: %w", err)
	}

	return NewLangChainModel(client), nil
}
