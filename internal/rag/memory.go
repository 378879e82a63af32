package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// MemoryStore is an in-process KnowledgeStore, used for fixtures and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]KnowledgeChunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(chunks ...KnowledgeChunk) *MemoryStore {
	s := &MemoryStore{chunks: make(map[string]KnowledgeChunk, len(chunks))}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return s
}

// fixtureRow mirrors KnowledgeChunk but accepts loosely typed embeddings.
type fixtureRow struct {
	ID          string          `json:"id"`
	SourceID    string          `json:"source_id"`
	SourceTitle string          `json:"source_title"`
	PageNumber  *int            `json:"page_number"`
	ChunkIndex  int             `json:"chunk_index"`
	Text        string          `json:"text"`
	Embedding   json.RawMessage `json:"embedding"`
}

// LoadMemoryStore reads a JSON array of chunks from path.
// Embeddings may be arrays, strings, or absent.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseMemoryStore(data)
}

// ParseMemoryStore builds a store from JSON fixture bytes.
func ParseMemoryStore(data []byte) (*MemoryStore, error) {
	var rows []fixtureRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	s := NewMemoryStore()
	for i, row := range rows {
		if row.ID == "" {
			return nil, fmt.Errorf("fixture row %d: missing id", i)
		}
		emb, err := parseEmbeddingJSON(row.Embedding)
		if err != nil {
			slog.Warn("dropping unparseable fixture embedding", "component", "rag", "chunk_id", row.ID, "error", err)
			emb = nil
		}
		s.chunks[row.ID] = KnowledgeChunk{
			ID:          row.ID,
			SourceID:    row.SourceID,
			SourceTitle: row.SourceTitle,
			PageNumber:  row.PageNumber,
			ChunkIndex:  row.ChunkIndex,
			Text:        row.Text,
			Embedding:   emb,
		}
	}
	return s, nil
}

// Candidates returns every embedded chunk.
func (s *MemoryStore) Candidates(ctx context.Context, opts *SearchOptions) ([]KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KnowledgeChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if c.HasEmbedding() && opts.matches(c.SourceID) {
			out = append(out, c)
		}
	}
	// Map iteration is random; keep the output reproducible.
	sortByTitleAndIndex(out)
	return out, nil
}

// Ordered returns up to limit chunks ordered by title and index.
func (s *MemoryStore) Ordered(ctx context.Context, limit int, opts *SearchOptions) ([]KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KnowledgeChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if opts.matches(c.SourceID) {
			out = append(out, c)
		}
	}
	sortByTitleAndIndex(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Insert adds or replaces chunks.
func (s *MemoryStore) Insert(ctx context.Context, chunks []KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

// DeleteSources removes all chunks of the given sources.
func (s *MemoryStore) DeleteSources(ctx context.Context, sourceIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts := &SearchOptions{SourceIDs: sourceIDs}
	for id, c := range s.chunks {
		if opts.matches(c.SourceID) && len(sourceIDs) > 0 {
			delete(s.chunks, id)
		}
	}
	return nil
}

// ExistingSources reports which source IDs have chunks.
func (s *MemoryStore) ExistingSources(ctx context.Context, sourceIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		existing[id] = false
	}
	for _, c := range s.chunks {
		if _, ok := existing[c.SourceID]; ok {
			existing[c.SourceID] = true
		}
	}
	return existing, nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ KnowledgeStore = (*MemoryStore)(nil)
