package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTopicLength caps each digest line, in characters.
	MaxTopicLength = 100

	digestHeading   = "Earlier in this conversation, the following topics were covered:"
	digestClosing   = "Continue the conversation with this earlier context in mind."
	digestNoTopics  = "Earlier turns of this conversation were condensed; no user questions were recorded in them."
	digestDelimiter = "\n\n---\n\n"
)

// Compressor turns the older part of a conversation into a single text
// that stands in for it.
type Compressor interface {
	Compress(ctx context.Context, old []Message) (string, error)
}

// DigestCompressor lists the first sentence of every earlier user message.
// It does no I/O and never fails.
type DigestCompressor struct{}

// Compress builds the digest for old.
func (DigestCompressor) Compress(_ context.Context, old []Message) (string, error) {
	return BuildDigest(old), nil
}

// BuildDigest renders old user messages as a numbered topic list. Topics
// are best-effort fragments: a message without sentence punctuation in its
// first MaxTopicLength characters is simply cut there.
func BuildDigest(old []Message) string {
	var topics []string
	for _, m := range old {
		if m.Role != RoleUser {
			continue
		}
		if topic := FirstSentence(m.Content); topic != "" {
			topics = append(topics, topic)
		}
	}

	var b strings.Builder
	if len(topics) == 0 {
		b.WriteString(digestNoTopics)
		b.WriteString("\n")
		b.WriteString(digestClosing)
		return b.String()
	}

	b.WriteString(digestHeading)
	b.WriteString("\n")
	for i, topic := range topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, topic)
	}
	b.WriteString(digestClosing)
	return b.String()
}

// FirstSentence returns text up to and including the first '.', '!' or
// '?', with whitespace collapsed and cut to MaxTopicLength characters.
func FirstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	if utf8.RuneCountInString(text) > MaxTopicLength {
		text = strings.TrimSpace(string([]rune(text)[:MaxTopicLength]))
	}
	return text
}

// attachDigest prepends digest to the content of a user message.
func attachDigest(digest, content string) string {
	return digest + digestDelimiter + content
}
