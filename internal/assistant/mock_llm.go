package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Yates-Labs/furrow/internal/conversation"
)

// MockLLM is a deterministic LLM implementation for testing and offline use.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate and Chat.
	// If empty, a default response is generated from the prompt.
	Response string

	// Error, if set, is returned instead of a response.
	Error error

	mu         sync.Mutex
	lastPrompt string
	lastChat   Prompt
	calls      int
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response or a deterministic echo.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.lastPrompt = prompt
	m.calls++
	m.mu.Unlock()

	if m.Error != nil {
		return "", m.Error
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "Mock response to: " + conversation.FirstSentence(prompt), nil
}

// Chat returns the configured response or one describing the prompt.
func (m *MockLLM) Chat(ctx context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	m.lastChat = prompt
	m.lastPrompt = prompt.Render()
	m.calls++
	m.mu.Unlock()

	if m.Error != nil {
		return "", m.Error
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return generateMockResponse(prompt), nil
}

// LastPrompt returns the most recent prompt text.
func (m *MockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastChat returns the most recent role-tagged prompt passed to Chat.
func (m *MockLLM) LastChat() Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChat
}

// Calls returns how many times the mock was invoked.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func generateMockResponse(prompt Prompt) string {
	question := ""
	if n := len(prompt.Messages); n > 0 {
		question = conversation.FirstSentence(prompt.Messages[n-1].Content)
	}
	sources := strings.Count(prompt.System, "\nSource ")
	return fmt.Sprintf("Mock answer to %q using %d knowledge excerpts and %d prior messages.",
		question, sources, max(len(prompt.Messages)-1, 0))
}
