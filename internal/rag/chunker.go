package rag

import (
	"strings"
	"unicode/utf8"
)

// ChunkText splits text into chunks of at most maxLen runes, breaking at
// paragraph boundaries where it can. A paragraph longer than maxLen is cut
// at the last whitespace before the limit, or hard-cut when it has none.
func ChunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 1000
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range splitParagraphs(text) {
		paraLen := utf8.RuneCountInString(para)

		if paraLen > maxLen {
			flush()
			chunks = append(chunks, splitLong(para, maxLen)...)
			continue
		}

		// +2 for the blank line joining paragraphs
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+2+paraLen > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paras = append(paras, strings.TrimSpace(strings.Join(current, "\n")))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paras = append(paras, strings.TrimSpace(strings.Join(current, "\n")))
	}
	return paras
}

func splitLong(para string, maxLen int) []string {
	var parts []string
	runes := []rune(para)
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen; i > maxLen/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
				cut = i
				break
			}
		}
		if s := strings.TrimSpace(string(runes[:cut])); s != "" {
			parts = append(parts, s)
		}
		runes = runes[cut:]
	}
	if s := strings.TrimSpace(string(runes)); s != "" {
		parts = append(parts, s)
	}
	return parts
}
