package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Contract errors returned by Search. These indicate a caller bug and are
// never converted into a degraded outcome.
var (
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrInvalidTopK      = errors.New("topK must be at least 1")
	ErrInvalidThreshold = errors.New("minSimilarity must be within [0, 1]")
)

// DefaultMinSimilarity is the threshold GetContext searches with.
const DefaultMinSimilarity = 0.5

// candidatePoolFactor sizes an index-backed prefetch relative to topK.
const candidatePoolFactor = 4

// OutcomeKind tags how a retrieval ended.
type OutcomeKind int

const (
	// OutcomeRanked means at least one chunk cleared the similarity threshold.
	OutcomeRanked OutcomeKind = iota
	// OutcomeFallback means nothing cleared the threshold and unranked chunks were returned.
	OutcomeFallback
	// OutcomeEmpty means the store holds no knowledge at all.
	OutcomeEmpty
	// OutcomeDegraded means the store or embedding provider failed.
	OutcomeDegraded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRanked:
		return "ranked"
	case OutcomeFallback:
		return "fallback"
	case OutcomeEmpty:
		return "empty"
	case OutcomeDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of a retrieval before it is collapsed to a plain list.
type Outcome struct {
	Kind    OutcomeKind
	Results []SearchResult
	Reason  error // set for OutcomeDegraded
}

// Retriever ranks stored knowledge chunks against a free-text query.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	embedder      Embedder
	store         PassageStore
	minSimilarity float64
	logger        *slog.Logger
}

// RetrieverOption customizes a Retriever.
type RetrieverOption func(*Retriever)

// WithMinSimilarity sets the threshold used by GetContext.
func WithMinSimilarity(v float64) RetrieverOption {
	return func(r *Retriever) { r.minSimilarity = v }
}

// WithLogger sets the logger used for degraded retrievals.
func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder Embedder, store PassageStore, opts ...RetrieverOption) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("passage store cannot be nil")
	}

	r := &Retriever{
		embedder:      embedder,
		store:         store,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := validateSearch("-", 1, r.minSimilarity); err != nil {
		return nil, err
	}

	return r, nil
}

// Retrieve runs a search and reports how it ended. Upstream failures become
// OutcomeDegraded instead of an error; the returned error is non-nil only for
// contract violations.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minSimilarity float64) (Outcome, error) {
	if err := validateSearch(query, topK, minSimilarity); err != nil {
		return Outcome{}, err
	}

	outcome, err := r.retrieve(ctx, query, topK, minSimilarity)
	if err != nil {
		return Outcome{Kind: OutcomeDegraded, Results: []SearchResult{}, Reason: err}, nil
	}
	return outcome, nil
}

// Search returns at most topK results for query. Ranked results come first by
// similarity; when none clear minSimilarity the deterministic fallback is used.
// Store or embedder failures are logged and yield an empty list.
func (r *Retriever) Search(ctx context.Context, query string, topK int, minSimilarity float64) ([]SearchResult, error) {
	outcome, err := r.Retrieve(ctx, query, topK, minSimilarity)
	if err != nil {
		return nil, err
	}
	if outcome.Kind == OutcomeDegraded {
		r.logger.Warn("knowledge retrieval degraded, continuing without context",
			"component", "rag", "error", outcome.Reason)
	}
	return outcome.Results, nil
}

// GetContext searches with the retriever's default threshold and renders the
// results for a prompt. It returns "" on any failure or when nothing is stored.
func (r *Retriever) GetContext(ctx context.Context, query string, topK int) string {
	results, err := r.Search(ctx, query, topK, r.minSimilarity)
	if err != nil {
		r.logger.Error("invalid knowledge context request", "component", "rag", "error", err)
		return ""
	}
	return FormatForPrompt(results)
}

func (r *Retriever) retrieve(ctx context.Context, query string, topK int, minSimilarity float64) (Outcome, error) {
	queryVector, err := embedOne(ctx, r.embedder, query)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := r.candidates(ctx, queryVector, topK)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load candidate chunks: %w", err)
	}

	ranked := r.rank(queryVector, candidates, minSimilarity)
	if len(ranked) > 0 {
		if len(ranked) > topK {
			ranked = ranked[:topK]
		}
		return Outcome{Kind: OutcomeRanked, Results: ranked}, nil
	}

	ordered, err := r.store.Ordered(ctx, topK, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load fallback chunks: %w", err)
	}
	if len(ordered) == 0 {
		return Outcome{Kind: OutcomeEmpty, Results: []SearchResult{}}, nil
	}

	// Stores already order these, but the contract is ours to keep.
	sortByTitleAndIndex(ordered)
	if len(ordered) > topK {
		ordered = ordered[:topK]
	}

	results := make([]SearchResult, len(ordered))
	for i, c := range ordered {
		results[i] = toResult(c, 0, false)
	}
	return Outcome{Kind: OutcomeFallback, Results: results}, nil
}

func (r *Retriever) candidates(ctx context.Context, queryVector []float32, topK int) ([]KnowledgeChunk, error) {
	if nearest, ok := r.store.(NearestStore); ok {
		return nearest.Nearest(ctx, queryVector, topK*candidatePoolFactor, nil)
	}
	return r.store.Candidates(ctx, nil)
}

func (r *Retriever) rank(queryVector []float32, candidates []KnowledgeChunk, minSimilarity float64) []SearchResult {
	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasEmbedding() {
			continue
		}
		if len(c.Embedding) != len(queryVector) {
			r.logger.Warn("skipping chunk with mismatched embedding dimension",
				"component", "rag", "chunk_id", c.ID, "got", len(c.Embedding), "want", len(queryVector))
			continue
		}

		sim := CosineSimilarity(queryVector, c.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, toResult(c, sim, true))
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		if a.SourceTitle != b.SourceTitle {
			return a.SourceTitle < b.SourceTitle
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}

func validateSearch(query string, topK int, minSimilarity float64) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if topK < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidTopK, topK)
	}
	// The negated form also rejects NaN.
	if !(minSimilarity >= 0 && minSimilarity <= 1) {
		return fmt.Errorf("%w, got %v", ErrInvalidThreshold, minSimilarity)
	}
	return nil
}

func toResult(c KnowledgeChunk, similarity float64, ranked bool) SearchResult {
	return SearchResult{
		ChunkID:     c.ID,
		ChunkText:   c.Text,
		SourceTitle: c.SourceTitle,
		PageNumber:  c.PageNumber,
		ChunkIndex:  c.ChunkIndex,
		Similarity:  similarity,
		Ranked:      ranked,
	}
}

// sortByTitleAndIndex orders chunks by (SourceTitle, ChunkIndex, ID).
func sortByTitleAndIndex(chunks []KnowledgeChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.SourceTitle != b.SourceTitle {
			return a.SourceTitle < b.SourceTitle
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.ID < b.ID
	})
}
