package rag

import (
	"fmt"
	"strings"
)

const (
	resultSeparator   = "\n\n---\n\n"
	citationReminder  = "When you use information from these sources, cite them by number (for example, [Source 1])."
	knowledgeHeadline = "Relevant knowledge base excerpts:"
)

// FormatForPrompt renders search results as numbered source blocks for a
// language model. An empty input yields "" so callers can omit the section.
func FormatForPrompt(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		label := fmt.Sprintf("Source %d: %s", i+1, r.SourceTitle)
		if r.PageNumber != nil {
			label += fmt.Sprintf(", page %d", *r.PageNumber)
		}
		blocks[i] = label + "\n" + strings.TrimSpace(r.ChunkText)
	}

	var b strings.Builder
	b.WriteString(knowledgeHeadline)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, resultSeparator))
	b.WriteString("\n\n")
	b.WriteString(citationReminder)
	return b.String()
}
