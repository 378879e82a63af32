// Package conversation keeps a multi-turn chat history inside a token
// budget. Recent turns are kept verbatim; older turns are folded into a
// digest attached to the first retained user message.
package conversation

import (
	"errors"
	"fmt"
)

// Contract errors. They indicate a caller bug and are never degraded.
var (
	ErrInvalidBudget = errors.New("maxTokens must be positive")
	ErrInvalidWindow = errors.New("keepRecentPairs must be at least 1")
	ErrInvalidRole   = errors.New("message role must be user or assistant")
	ErrNoAlternation = errors.New("history never alternates between user and assistant")
)

const (
	DefaultMaxTokens       = 8000
	DefaultKeepRecentPairs = 3
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CompressionStats describes what Manage did. It is computed per call.
type CompressionStats struct {
	OriginalMessages int  `json:"original_messages"`
	OriginalTokens   int  `json:"original_tokens"`
	FinalMessages    int  `json:"final_messages"`
	FinalTokens      int  `json:"final_tokens"`
	WasCompressed    bool `json:"was_compressed"`
}

// Result is a managed history with its stats.
type Result struct {
	Messages []Message        `json:"messages"`
	Stats    CompressionStats `json:"stats"`
}

// ValidateHistory checks roles and rejects histories of two or more
// messages in which no adjacent pair alternates.
func ValidateHistory(history []Message) error {
	for i, m := range history {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidRole, i, m.Role)
		}
	}
	if len(history) < 2 {
		return nil
	}
	for i := 1; i < len(history); i++ {
		if history[i].Role != history[i-1].Role {
			return nil
		}
	}
	return fmt.Errorf("%w: all %d messages have role %q", ErrNoAlternation, len(history), history[0].Role)
}

// Alternates reports whether history starts with a user message and
// strictly alternates after that. An empty history alternates.
func Alternates(history []Message) bool {
	for i, m := range history {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if m.Role != want {
			return false
		}
	}
	return true
}
