package source

import (
	"strings"
)

// Kind identifies where a document came from.
type Kind string

const (
	KindFile   Kind = "file"
	KindGit    Kind = "git"
	KindGitHub Kind = "github"
)

// Page is one page of a document. Number is 1-based, or 0 when the
// document has a single page and page labels would be noise.
type Page struct {
	Number int    `json:"number,omitempty"`
	Text   string `json:"text"`
}

// Document is a knowledge source ready to be chunked and indexed.
type Document struct {
	SourceID string `json:"source_id"` // Stable across re-ingestion
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Kind     Kind   `json:"kind"`
	Pages    []Page `json:"pages"`
}

// NewDocument builds a document from raw text, splitting pages on form feeds.
func NewDocument(kind Kind, sourceID, title, url, text string) Document {
	return Document{
		SourceID: sourceID,
		Title:    title,
		URL:      url,
		Kind:     kind,
		Pages:    SplitPages(text),
	}
}

// SplitPages splits text on form feed characters. Blank pages are dropped
// but keep their position in the numbering.
func SplitPages(text string) []Page {
	raw := strings.Split(text, "\f")
	if len(raw) == 1 {
		if strings.TrimSpace(raw[0]) == "" {
			return nil
		}
		return []Page{{Text: raw[0]}}
	}

	pages := make([]Page, 0, len(raw))
	for i, p := range raw {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}

// IsEmpty reports whether the document has no indexable text.
func (d Document) IsEmpty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}
