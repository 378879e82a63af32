package rag

import (
	"context"
)

// KnowledgeChunk is one independently embeddable slice of a source document.
type KnowledgeChunk struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	SourceTitle string    `json:"source_title"`
	PageNumber  *int      `json:"page_number,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	Embedding   []float32 `json:"embedding,omitempty"` // nil until the chunk has been embedded
}

// HasEmbedding reports whether the chunk can take part in similarity ranking.
func (c KnowledgeChunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// SearchResult is a chunk selected for a prompt.
// Similarity is only meaningful when Ranked is true; fallback results leave it zero.
type SearchResult struct {
	ChunkID     string  `json:"chunk_id"`
	ChunkText   string  `json:"chunk_text"`
	SourceTitle string  `json:"source_title"`
	PageNumber  *int    `json:"page_number,omitempty"`
	ChunkIndex  int     `json:"chunk_index"`
	Similarity  float64 `json:"similarity,omitempty"`
	Ranked      bool    `json:"ranked"`
}

// SearchOptions restricts which chunks a store returns.
type SearchOptions struct {
	SourceIDs []string `json:"source_ids,omitempty"` // Empty means every source
}

func (o *SearchOptions) matches(sourceID string) bool {
	if o == nil || len(o.SourceIDs) == 0 {
		return true
	}
	for _, id := range o.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

// PassageStore is the read side of the knowledge store consumed by the Retriever.
// Implementations must normalize their rows into KnowledgeChunk before returning.
type PassageStore interface {
	// Candidates returns every chunk that has an embedding.
	Candidates(ctx context.Context, opts *SearchOptions) ([]KnowledgeChunk, error)

	// Ordered returns up to limit chunks, embedded or not, ordered by
	// source title then chunk index.
	Ordered(ctx context.Context, limit int, opts *SearchOptions) ([]KnowledgeChunk, error)
}

// NearestStore is a PassageStore backed by a vector index. The Retriever
// prefetches candidates through it instead of loading every chunk, then
// ranks them exactly as it does for any other store.
type NearestStore interface {
	PassageStore

	// Nearest returns up to limit embedded chunks closest to vector.
	Nearest(ctx context.Context, vector []float32, limit int, opts *SearchOptions) ([]KnowledgeChunk, error)
}

// KnowledgeStore is a PassageStore that can also be written by the indexer.
type KnowledgeStore interface {
	PassageStore

	// Insert adds or replaces chunks
	Insert(ctx context.Context, chunks []KnowledgeChunk) error

	// DeleteSources removes every chunk belonging to the given sources
	DeleteSources(ctx context.Context, sourceIDs []string) error

	// ExistingSources reports which of the given source IDs already have chunks
	ExistingSources(ctx context.Context, sourceIDs []string) (map[string]bool, error)

	// Count returns the number of stored chunks
	Count(ctx context.Context) (int, error)

	// Close releases resources and closes connections
	Close() error
}

// IndexOptions provides configuration for document indexing
type IndexOptions struct {
	// BatchSize determines how many chunks to embed at once
	BatchSize int

	// ChunkSize is the target maximum length of a chunk in characters
	ChunkSize int

	// ForceReindex will delete and re-insert sources even if they exist
	ForceReindex bool

	// SkipExisting will skip sources that already have chunks
	SkipExisting bool

	// DeferEmbedding stores chunks without embeddings; they are only
	// reachable through the fallback path until embedded.
	DeferEmbedding bool
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize:    16,
		ChunkSize:    1000,
		ForceReindex: false,
		SkipExisting: true,
	}
}
