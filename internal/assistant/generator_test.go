package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Yates-Labs/furrow/internal/conversation"
)

func TestGenerator_Generate_Success(t *testing.T) {
	mockLLM := NewMockLLM("Sow peas in early spring.")
	config := DefaultLLMConfig()
	config.Model = "test-model"

	gen := NewGenerator(mockLLM, config)

	prompt, err := AssemblePrompt("", "", nil, "When should I sow peas?")
	if err != nil {
		t.Fatalf("unexpected prompt assembly error: %v", err)
	}

	reply, err := gen.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply.Text != "Sow peas in early spring." {
		t.Errorf("unexpected reply text: %s", reply.Text)
	}
	if reply.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", reply.Model)
	}
	if reply.GeneratedAt.IsZero() {
		t.Error("generated timestamp is zero")
	}

	if got := mockLLM.LastChat(); len(got.Messages) != 1 {
		t.Errorf("mock LLM received %d messages, want 1", len(got.Messages))
	}
	if !strings.Contains(mockLLM.LastPrompt(), "When should I sow peas?") {
		t.Error("rendered prompt does not contain the question")
	}
}

func TestGenerator_Generate_LLMError(t *testing.T) {
	llmErr := errors.New("api unavailable")
	gen := NewGenerator(NewMockLLMWithError(llmErr), DefaultLLMConfig())

	_, err := gen.Generate(context.Background(), Prompt{Messages: []conversation.Message{conversation.UserMessage("hi")}})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
	if !errors.Is(err, llmErr) {
		t.Errorf("expected wrapped LLM error, got %v", err)
	}
}

func TestGenerator_Generate_Validation(t *testing.T) {
	t.Run("nil LLM", func(t *testing.T) {
		gen := NewGenerator(nil, DefaultLLMConfig())
		_, err := gen.Generate(context.Background(), Prompt{Messages: []conversation.Message{conversation.UserMessage("hi")}})
		if !errors.Is(err, ErrGenerationFailed) {
			t.Errorf("expected ErrGenerationFailed, got %v", err)
		}
	})

	t.Run("empty prompt", func(t *testing.T) {
		gen := NewGenerator(NewMockLLM("x"), DefaultLLMConfig())
		_, err := gen.Generate(context.Background(), Prompt{System: "sys"})
		if !errors.Is(err, ErrGenerationFailed) {
			t.Errorf("expected ErrGenerationFailed, got %v", err)
		}
	})
}

func TestMockLLM_DefaultResponse(t *testing.T) {
	mock := &MockLLM{}
	prompt := Prompt{
		System: "Relevant knowledge base excerpts:\n\nSource 1: A\ntext\n\n---\n\nSource 2: B\ntext",
		Messages: []conversation.Message{
			conversation.UserMessage("First question."),
			conversation.AssistantMessage("First answer."),
			conversation.UserMessage("How deep do I plant garlic? Asking for my plot."),
		},
	}

	text, err := mock.Chat(context.Background(), prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `Mock answer to "How deep do I plant garlic?" using 2 knowledge excerpts and 2 prior messages.`
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", mock.Calls())
	}

	again, _ := mock.Chat(context.Background(), prompt)
	if again != text {
		t.Error("mock response should be deterministic")
	}
}

func TestMockLLM_Generate(t *testing.T) {
	mock := NewMockLLM("")
	text, err := mock.Generate(context.Background(), "Summarize this. Then more.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Mock response to: Summarize this." {
		t.Errorf("unexpected response %q", text)
	}
	if mock.LastPrompt() != "Summarize this. Then more." {
		t.Errorf("unexpected last prompt %q", mock.LastPrompt())
	}
}
