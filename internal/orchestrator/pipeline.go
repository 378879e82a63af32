package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yates-Labs/furrow/internal/assistant"
	"github.com/Yates-Labs/furrow/internal/conversation"
	"github.com/Yates-Labs/furrow/internal/rag"
	"github.com/Yates-Labs/furrow/internal/source"
)

var (
	ErrUnknownDriver      = errors.New("unknown store driver")
	ErrUnknownCompression = errors.New("unknown compression strategy")
	ErrUnknownEstimator   = errors.New("unknown token estimator")
	ErrUnknownProvider    = errors.New("unknown LLM provider")
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMilvus   = "milvus"
)

// Compression strategies for older conversation turns.
const (
	CompressionDigest  = "digest"
	CompressionSummary = "summary"
)

// Token estimators.
const (
	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config holds configuration for the question answering pipeline.
type Config struct {
	// TopK is the number of knowledge chunks placed in the prompt
	TopK int

	// MinSimilarity is the cosine threshold for ranked retrieval
	MinSimilarity float64

	// MaxTokens is the conversation history budget
	MaxTokens int

	// KeepRecentPairs is how many user/assistant pairs stay verbatim
	KeepRecentPairs int

	// Compression selects how older turns are condensed ("digest" or "summary")
	Compression string

	// TokenEstimator selects the history token counter ("heuristic" or "tiktoken")
	TokenEstimator string

	// Instructions is the system prompt; empty uses the assistant default
	Instructions string

	// EmbedderModel is the model to use for embeddings (e.g., "text-embedding-3-small")
	EmbedderModel string

	// EmbedderDimension is the vector dimension for embeddings
	EmbedderDimension int

	// EmbedCacheSize bounds the query embedding cache; 0 disables it
	EmbedCacheSize int

	// StoreDriver selects the knowledge store backend
	StoreDriver string

	// StoreDSN is the SQLite path, Postgres DSN or memory fixture file
	StoreDSN string

	// LLMProvider selects the completion backend ("openai" or "mock")
	LLMProvider string

	LLMConfig    assistant.LLMConfig
	MilvusConfig rag.MilvusConfig
	IndexOptions rag.IndexOptions
}

// DefaultConfig returns sensible defaults for the pipeline.
func DefaultConfig() Config {
	return Config{
		TopK:              5,
		MinSimilarity:     rag.DefaultMinSimilarity,
		MaxTokens:         conversation.DefaultMaxTokens,
		KeepRecentPairs:   conversation.DefaultKeepRecentPairs,
		Compression:       CompressionDigest,
		TokenEstimator:    EstimatorHeuristic,
		EmbedderModel:     "text-embedding-3-small",
		EmbedderDimension: 1536,
		EmbedCacheSize:    256,
		StoreDriver:       DriverSQLite,
		StoreDSN:          "furrow.db",
		LLMProvider:       ProviderOpenAI,
		LLMConfig:         assistant.DefaultLLMConfig(),
		MilvusConfig:      rag.DefaultMilvusConfig(),
		IndexOptions:      rag.DefaultIndexOptions(),
	}
}

// Validate checks the settings that select components.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverMilvus:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.StoreDriver)
	}
	switch c.Compression {
	case CompressionDigest, CompressionSummary:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCompression, c.Compression)
	}
	switch c.TokenEstimator {
	case EstimatorHeuristic, EstimatorTiktoken:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEstimator, c.TokenEstimator)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.LLMProvider)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w, got %d", rag.ErrInvalidTopK, c.TopK)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w, got %d", conversation.ErrInvalidBudget, c.MaxTokens)
	}
	if c.KeepRecentPairs < 1 {
		return fmt.Errorf("%w, got %d", conversation.ErrInvalidWindow, c.KeepRecentPairs)
	}
	return nil
}

// Pipeline answers questions: context management -> retrieval -> prompt
// assembly -> LLM generation.
type Pipeline struct {
	config    Config
	embedder  rag.Embedder
	store     rag.KnowledgeStore
	retriever *rag.Retriever
	manager   *conversation.Manager
	generator *assistant.Generator
	logger    *slog.Logger
}

// NewPipeline creates the embedder, store and LLM described by config.
func NewPipeline(ctx context.Context, config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var embedder rag.Embedder
	embedder, err := rag.NewOpenAIEmbedder(config.EmbedderModel, config.EmbedderDimension)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if config.EmbedCacheSize > 0 {
		if embedder, err = rag.NewCachedEmbedder(embedder, config.EmbedCacheSize); err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
	}

	llm, err := newLLM(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}

	store, err := OpenStore(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	p, err := NewPipelineWithDeps(config, embedder, store, llm)
	if err != nil {
		store.Close()
		return nil, err
	}
	return p, nil
}

// NewPipelineWithDeps builds a pipeline around existing components.
// The pipeline takes ownership of store.
func NewPipelineWithDeps(config Config, embedder rag.Embedder, store rag.KnowledgeStore, llm assistant.LLM) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if llm == nil {
		return nil, fmt.Errorf("LLM cannot be nil")
	}

	logger := slog.Default().With("component", "orchestrator")

	retriever, err := rag.NewRetriever(embedder, store, rag.WithMinSimilarity(config.MinSimilarity))
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	manager, err := NewManager(config, llm)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:    config,
		embedder:  embedder,
		store:     store,
		retriever: retriever,
		manager:   manager,
		generator: assistant.NewGenerator(llm, config.LLMConfig),
		logger:    logger,
	}, nil
}

// NewManager builds the context window manager described by config. llm is
// only needed for summary compression.
func NewManager(config Config, llm assistant.LLM) (*conversation.Manager, error) {
	estimator, err := newEstimator(config)
	if err != nil {
		return nil, err
	}

	var compressor conversation.Compressor = conversation.DigestCompressor{}
	if config.Compression == CompressionSummary {
		if llm == nil {
			return nil, fmt.Errorf("%w: summary compression needs an LLM", ErrUnknownCompression)
		}
		if compressor, err = conversation.NewSummaryCompressor(llm); err != nil {
			return nil, fmt.Errorf("failed to create summarizer: %w", err)
		}
	}

	return conversation.NewManager(
		conversation.WithEstimator(estimator),
		conversation.WithCompressor(compressor),
	), nil
}

// NewLLM creates the completion backend selected by config.LLMProvider.
func NewLLM(config Config) (assistant.LLM, error) {
	return newLLM(config)
}

// OpenStore opens the knowledge store selected by config.StoreDriver.
func OpenStore(ctx context.Context, config Config) (rag.KnowledgeStore, error) {
	switch config.StoreDriver {
	case DriverMemory:
		if config.StoreDSN == "" {
			return rag.NewMemoryStore(), nil
		}
		return rag.LoadMemoryStore(config.StoreDSN)
	case DriverSQLite:
		return rag.NewSQLiteStore(ctx, config.StoreDSN)
	case DriverPostgres:
		return rag.NewPostgresStore(ctx, config.StoreDSN)
	case DriverMilvus:
		milvusConfig := config.MilvusConfig
		milvusConfig.Dimension = config.EmbedderDimension
		return rag.NewMilvusStore(ctx, milvusConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, config.StoreDriver)
	}
}

func newLLM(config Config) (assistant.LLM, error) {
	switch config.LLMProvider {
	case ProviderMock:
		return assistant.NewMockLLM(""), nil
	case ProviderOpenAI:
		return assistant.NewOpenAILLM(config.LLMConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.LLMProvider)
	}
}

func newEstimator(config Config) (conversation.TokenEstimator, error) {
	if config.TokenEstimator != EstimatorTiktoken {
		return conversation.HeuristicEstimator{}, nil
	}
	est, err := conversation.NewTiktokenEstimatorForModel(config.LLMConfig.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}
	return est, nil
}

// Close releases resources held by the pipeline.
func (p *Pipeline) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// Ask answers question given the conversation so far. The history is fitted
// to the token budget first; retrieval failures degrade to an answer without
// knowledge rather than an error.
func (p *Pipeline) Ask(ctx context.Context, history []conversation.Message, question string) (*assistant.Reply, conversation.CompressionStats, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, conversation.CompressionStats{}, assistant.ErrEmptyQuestion
	}

	// Stage 1: fit the history to the budget
	managed, err := p.manager.Manage(ctx, history, p.config.MaxTokens, p.config.KeepRecentPairs)
	if err != nil {
		return nil, conversation.CompressionStats{}, fmt.Errorf("context management failed: %w", err)
	}
	p.logger.Debug("history managed", "messages", managed.Stats.FinalMessages,
		"tokens", managed.Stats.FinalTokens, "compressed", managed.Stats.WasCompressed)

	// Stage 2: retrieve knowledge for the question
	outcome, err := p.Search(ctx, question)
	if err != nil {
		return nil, managed.Stats, err
	}

	// Stage 3: assemble the prompt
	prompt, err := assistant.AssemblePrompt(p.config.Instructions, rag.FormatForPrompt(outcome.Results), managed.Messages, question)
	if err != nil {
		return nil, managed.Stats, fmt.Errorf("prompt assembly failed: %w", err)
	}
	p.logger.Debug("prompt assembled", "messages", len(prompt.Messages), "system_chars", len(prompt.System))

	// Stage 4: generate the reply
	reply, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, managed.Stats, err
	}
	reply.Sources = outcome.Results
	reply.Retrieval = outcome.Kind.String()

	p.logger.Info("question answered", "retrieval", reply.Retrieval,
		"sources", len(reply.Sources), "reply_chars", len(reply.Text))
	return reply, managed.Stats, nil
}

// Search retrieves knowledge for query with the configured topK and threshold.
func (p *Pipeline) Search(ctx context.Context, query string) (rag.Outcome, error) {
	outcome, err := p.retriever.Retrieve(ctx, query, p.config.TopK, p.config.MinSimilarity)
	if err != nil {
		return rag.Outcome{}, fmt.Errorf("retrieval failed: %w", err)
	}
	if outcome.Kind == rag.OutcomeDegraded {
		p.logger.Warn("knowledge retrieval degraded, answering without context", "error", outcome.Reason)
	}
	p.logger.Info("knowledge retrieved", "outcome", outcome.Kind.String(), "results", len(outcome.Results))
	return outcome, nil
}

// Compact fits history to the configured budget without asking anything.
func (p *Pipeline) Compact(ctx context.Context, history []conversation.Message) (conversation.Result, error) {
	return p.manager.Manage(ctx, history, p.config.MaxTokens, p.config.KeepRecentPairs)
}

// Index chunks, embeds and stores documents.
func (p *Pipeline) Index(ctx context.Context, docs []source.Document) (rag.IndexReport, error) {
	p.logger.Info("indexing documents", "documents", len(docs))
	report, err := rag.IndexDocuments(ctx, docs, p.embedder, p.store, p.config.IndexOptions)
	if err != nil {
		return report, fmt.Errorf("failed to index documents: %w", err)
	}
	return report, nil
}

// Sync applies a batch of file changes below root: updated files are
// re-indexed and removed files lose their chunks.
func (p *Pipeline) Sync(ctx context.Context, root string, change source.Change) (rag.IndexReport, error) {
	var removed []string
	for _, path := range change.Removed {
		removed = append(removed, relativeID(root, path))
	}
	if len(removed) > 0 {
		if err := p.store.DeleteSources(ctx, removed); err != nil {
			return rag.IndexReport{}, fmt.Errorf("failed to remove sources: %w", err)
		}
		p.logger.Info("removed sources", "sources", len(removed))
	}

	var docs []source.Document
	for _, path := range change.Updated {
		doc, err := source.LoadFile(root, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			p.logger.Warn("cannot load changed file", "path", path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return rag.IndexReport{}, nil
	}

	opts := p.config.IndexOptions
	opts.ForceReindex = true
	opts.SkipExisting = false
	report, err := rag.IndexDocuments(ctx, docs, p.embedder, p.store, opts)
	if err != nil {
		return report, fmt.Errorf("failed to re-index changed files: %w", err)
	}
	return report, nil
}

// Count returns how many chunks the knowledge store holds.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.store.Count(ctx)
}

func relativeID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(filepath.Base(path))
	}
	return filepath.ToSlash(rel)
}
