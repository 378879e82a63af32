package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockGenerator implements Generator for testing
type mockGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.response, m.err
}

func TestSummaryCompressor(t *testing.T) {
	old := []Message{
		UserMessage("Which tomatoes resist blight?"),
		AssistantMessage("Try Defiant and Mountain Magic."),
	}

	t.Run("uses model summary", func(t *testing.T) {
		gen := &mockGenerator{response: "  1. Blight-resistant tomatoes: Defiant, Mountain Magic.  "}
		c, err := NewSummaryCompressor(gen)
		if err != nil {
			t.Fatalf("NewSummaryCompressor failed: %v", err)
		}

		got, err := c.Compress(context.Background(), old)
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if got != "Summary of the earlier conversation:\n1. Blight-resistant tomatoes: Defiant, Mountain Magic." {
			t.Errorf("unexpected summary %q", got)
		}
		for _, want := range []string{"user: Which tomatoes resist blight?", "assistant: Try Defiant"} {
			if !strings.Contains(gen.lastPrompt, want) {
				t.Errorf("prompt missing %q:\n%s", want, gen.lastPrompt)
			}
		}
	})

	t.Run("falls back on error", func(t *testing.T) {
		c, _ := NewSummaryCompressor(&mockGenerator{err: errors.New("timeout")})
		got, err := c.Compress(context.Background(), old)
		if err != nil {
			t.Fatalf("Compress should not fail: %v", err)
		}
		if got != BuildDigest(old) {
			t.Errorf("expected digest fallback, got %q", got)
		}
	})

	t.Run("falls back on empty output", func(t *testing.T) {
		c, _ := NewSummaryCompressor(&mockGenerator{response: "   "})
		got, _ := c.Compress(context.Background(), old)
		if got != BuildDigest(old) {
			t.Errorf("expected digest fallback, got %q", got)
		}
	})

	t.Run("interchangeable with digest in manager", func(t *testing.T) {
		c, _ := NewSummaryCompressor(&mockGenerator{response: "Talked about tomatoes."})
		history := alternating(12, longTurn)
		result, err := NewManager(WithCompressor(c)).Manage(context.Background(), history, 10, 3)
		if err != nil {
			t.Fatalf("Manage failed: %v", err)
		}
		if !strings.HasPrefix(result.Messages[0].Content, "Summary of the earlier conversation:\nTalked about tomatoes.") {
			t.Errorf("summary not attached: %q", result.Messages[0].Content[:60])
		}
		if !Alternates(result.Messages) {
			t.Error("result does not alternate")
		}
	})

	if _, err := NewSummaryCompressor(nil); err == nil {
		t.Error("expected error for nil generator")
	}
}
