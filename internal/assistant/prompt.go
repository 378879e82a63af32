package assistant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Yates-Labs/furrow/internal/conversation"
)

var (
	ErrEmptyQuestion  = errors.New("question cannot be empty")
	ErrUnansweredTurn = errors.New("history ends with an unanswered user message")
)

// DefaultInstructions is the system prompt used when none is configured.
const DefaultInstructions = "You are a knowledgeable gardening and farm-planning assistant. " +
	"Answer clearly and practically. When knowledge base excerpts are provided, prefer them over " +
	"general knowledge and cite them by number. If the excerpts do not cover the question, say so " +
	"and answer from general knowledge."

// Prompt is a role-tagged prompt ready for a chat completion API.
type Prompt struct {
	System   string                 `json:"system"`
	Messages []conversation.Message `json:"messages"`
}

// AssemblePrompt combines system instructions, formatted knowledge, the
// managed history and the new question. The knowledge section is omitted
// when empty. The managed history must not end with a user message, so the
// result stays user-first and alternating.
func AssemblePrompt(instructions, knowledge string, history []conversation.Message, question string) (Prompt, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Prompt{}, ErrEmptyQuestion
	}
	if n := len(history); n > 0 && history[n-1].Role == conversation.RoleUser {
		return Prompt{}, fmt.Errorf("%w: %d messages", ErrUnansweredTurn, n)
	}

	if instructions == "" {
		instructions = DefaultInstructions
	}

	system := instructions
	if knowledge = strings.TrimSpace(knowledge); knowledge != "" {
		system += "\n\n" + knowledge
	}

	messages := make([]conversation.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, conversation.UserMessage(question))

	return Prompt{System: system, Messages: messages}, nil
}

// Render flattens the prompt into plain text for providers without chat
// roles and for display.
func (p Prompt) Render() string {
	var b strings.Builder
	if p.System != "" {
		b.WriteString("# System\n\n")
		b.WriteString(p.System)
		b.WriteString("\n\n")
	}
	for _, m := range p.Messages {
		heading := "User"
		if m.Role == conversation.RoleAssistant {
			heading = "Assistant"
		}
		fmt.Fprintf(&b, "# %s\n\n%s\n\n", heading, m.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
