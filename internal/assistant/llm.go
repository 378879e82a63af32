// Package assistant talks to the completion model. It defines a
// provider-agnostic LLM interface with an OpenAI implementation and a
// deterministic mock, and assembles role-tagged prompts from system
// instructions, retrieved knowledge and the managed conversation.
package assistant

import (
	"context"
	"errors"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text from a single prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Chat produces the next assistant turn for a role-tagged prompt.
	Chat(ctx context.Context, prompt Prompt) (string, error)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Model specifies the model identifier (e.g., "gpt-4o", "gpt-4o-mini")
	Model string

	// Temperature controls randomness (0 = provider default)
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string

	// BaseURL points at an OpenAI-compatible endpoint; empty uses the default
	BaseURL string
}

// DefaultLLMConfig returns sensible defaults for answering questions.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0,
		MaxTokens:   1500,
	}
}
