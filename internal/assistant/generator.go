package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yates-Labs/furrow/internal/rag"
)

var (
	ErrGenerationFailed = errors.New("reply generation failed")
)

// Reply is a generated assistant turn together with the knowledge it was
// grounded on.
type Reply struct {
	// Text is the generated answer
	Text string `json:"text"`

	// Sources are the retrieved chunks placed in the prompt, in prompt order
	Sources []rag.SearchResult `json:"sources,omitempty"`

	// Retrieval tags how knowledge retrieval ended (ranked, fallback, empty, degraded)
	Retrieval string `json:"retrieval"`

	// GeneratedAt is when this reply was created
	GeneratedAt time.Time `json:"generated_at"`

	// Model is the LLM model used to generate this reply
	Model string `json:"model"`
}

// Generator produces replies by invoking an LLM on an already-assembled prompt.
// It performs no retrieval or context management.
type Generator struct {
	llm    LLM
	config LLMConfig
}

// NewGenerator creates a reply generator with the given LLM implementation.
func NewGenerator(llm LLM, config LLMConfig) *Generator {
	return &Generator{
		llm:    llm,
		config: config,
	}
}

// Generate invokes the LLM with the prompt and wraps its answer.
func (g *Generator) Generate(ctx context.Context, prompt Prompt) (*Reply, error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrGenerationFailed)
	}
	if len(prompt.Messages) == 0 {
		return nil, fmt.Errorf("%w: prompt is required", ErrGenerationFailed)
	}

	text, err := g.llm.Chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: LLM invocation failed: %w", ErrGenerationFailed, err)
	}

	return &Reply{
		Text:        text,
		GeneratedAt: time.Now(),
		Model:       g.config.Model,
	}, nil
}
