package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Generator is the completion capability SummaryCompressor needs.
// assistant.LLM satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SummaryCompressor asks a completion model to summarize the older turns.
// When the model fails or returns nothing it falls back to the digest, so
// Compress never returns an error.
type SummaryCompressor struct {
	llm      Generator
	fallback Compressor
	logger   *slog.Logger
}

// NewSummaryCompressor creates a compressor backed by llm.
func NewSummaryCompressor(llm Generator) (*SummaryCompressor, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm cannot be nil")
	}
	return &SummaryCompressor{
		llm:      llm,
		fallback: DigestCompressor{},
		logger:   slog.Default(),
	}, nil
}

// Compress summarizes old, falling back to the heuristic digest.
func (s *SummaryCompressor) Compress(ctx context.Context, old []Message) (string, error) {
	summary, err := s.llm.Generate(ctx, summaryPrompt(old))
	if err == nil {
		if summary = strings.TrimSpace(summary); summary != "" {
			return "Summary of the earlier conversation:\n" + summary, nil
		}
		err = fmt.Errorf("empty summary")
	}

	s.logger.Warn("conversation summary failed, using digest",
		"component", "conversation", "messages", len(old), "error", err)
	return s.fallback.Compress(ctx, old)
}

func summaryPrompt(old []Message) string {
	var b strings.Builder
	b.WriteString("Summarize the following conversation in a short numbered list of the topics the user raised ")
	b.WriteString("and any conclusions reached. Keep names, numbers and decisions. Do not add new information.\n\n")
	for _, m := range old {
		fmt.Fprintf(&b, "%s: %s\n\n", m.Role, strings.TrimSpace(m.Content))
	}
	return b.String()
}
