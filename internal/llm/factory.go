package llm

import (
	"fmt"
	"strings"
)

// Default models per provider, used when none is configured.
const (
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

// NewClient returns the backend client for the named provider. An empty
// model selects the provider default. The mock provider needs no key and
// is intended for ephemeral trial runs.
func NewClient(provider, apiKey, model string) (Client, error) {
	if model == "" {
		model = DefaultModel(provider)
	}

	switch strings.ToLower(provider) {
	case "", "gemini", "google":
		return NewGeminiClient(apiKey, model), nil
	case "openai":
		return NewOpenAIClient(apiKey, model), nil
	case "anthropic", "claude":
		return NewAnthropicClient(apiKey, model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider '%s' (supported: gemini, openai, anthropic, mock)", provider)
	}
}

// DefaultModel returns the model used for a provider when none is
// configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return defaultOpenAIModel
	case "anthropic", "claude":
		return defaultAnthropicModel
	default:
		return defaultGeminiModel
	}
}
