// Package config loads furrow settings from defaults, an optional YAML
// file and FURROW_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Yates-Labs/furrow/internal/orchestrator"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// FURROW_RETRIEVAL_TOP_K or FURROW_STORE_DRIVER.
const EnvPrefix = "FURROW"

// Config holds all application configuration.
type Config struct {
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Context   ContextConfig   `mapstructure:"context"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Store     StoreConfig     `mapstructure:"store"`
	Milvus    MilvusConfig    `mapstructure:"milvus"`
	Index     IndexConfig     `mapstructure:"index"`
	Log       LogConfig       `mapstructure:"log"`
}

type RetrievalConfig struct {
	TopK          int     `mapstructure:"top_k"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

type ContextConfig struct {
	MaxTokens       int    `mapstructure:"max_tokens"`
	KeepRecentPairs int    `mapstructure:"keep_recent_pairs"`
	Compression     string `mapstructure:"compression"`
	Estimator       string `mapstructure:"estimator"`
}

type EmbeddingConfig struct {
	Model     string `mapstructure:"model"`
	Dimension int    `mapstructure:"dimension"`
	CacheSize int    `mapstructure:"cache_size"`
}

type LLMConfig struct {
	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Instructions string  `mapstructure:"instructions"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MilvusConfig struct {
	Address        string `mapstructure:"address"`
	Collection     string `mapstructure:"collection"`
	M              int    `mapstructure:"m"`
	EfConstruction int    `mapstructure:"ef_construction"`
}

type IndexConfig struct {
	BatchSize      int  `mapstructure:"batch_size"`
	ChunkSize      int  `mapstructure:"chunk_size"`
	DeferEmbedding bool `mapstructure:"defer_embedding"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	p := orchestrator.DefaultConfig()
	return Config{
		Retrieval: RetrievalConfig{TopK: p.TopK, MinSimilarity: p.MinSimilarity},
		Context: ContextConfig{
			MaxTokens:       p.MaxTokens,
			KeepRecentPairs: p.KeepRecentPairs,
			Compression:     p.Compression,
			Estimator:       p.TokenEstimator,
		},
		Embedding: EmbeddingConfig{Model: p.EmbedderModel, Dimension: p.EmbedderDimension, CacheSize: p.EmbedCacheSize},
		LLM: LLMConfig{
			Provider:    p.LLMProvider,
			Model:       p.LLMConfig.Model,
			Temperature: float64(p.LLMConfig.Temperature),
			MaxTokens:   p.LLMConfig.MaxTokens,
		},
		Store: StoreConfig{Driver: p.StoreDriver, DSN: p.StoreDSN},
		Milvus: MilvusConfig{
			Address:        p.MilvusConfig.Address,
			Collection:     p.MilvusConfig.CollectionName,
			M:              p.MilvusConfig.M,
			EfConstruction: p.MilvusConfig.EfConstruction,
		},
		Index: IndexConfig{BatchSize: p.IndexOptions.BatchSize, ChunkSize: p.IndexOptions.ChunkSize},
		Log:   LogConfig{Level: "info"},
	}
}

// Load merges defaults, the YAML file at path (skipped when path is empty)
// and FURROW_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for _, warning := range cfg.Validate() {
		slog.Warn(warning, "component", "config")
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.min_similarity", d.Retrieval.MinSimilarity)
	v.SetDefault("context.max_tokens", d.Context.MaxTokens)
	v.SetDefault("context.keep_recent_pairs", d.Context.KeepRecentPairs)
	v.SetDefault("context.compression", d.Context.Compression)
	v.SetDefault("context.estimator", d.Context.Estimator)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.instructions", d.LLM.Instructions)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("milvus.address", d.Milvus.Address)
	v.SetDefault("milvus.collection", d.Milvus.Collection)
	v.SetDefault("milvus.m", d.Milvus.M)
	v.SetDefault("milvus.ef_construction", d.Milvus.EfConstruction)
	v.SetDefault("index.batch_size", d.Index.BatchSize)
	v.SetDefault("index.chunk_size", d.Index.ChunkSize)
	v.SetDefault("index.defer_embedding", d.Index.DeferEmbedding)
	v.SetDefault("log.level", d.Log.Level)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		warnings = append(warnings, fmt.Sprintf("retrieval min_similarity %.2f is outside [0, 1]", c.Retrieval.MinSimilarity))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.Context.MaxTokens > 0 && c.LLM.MaxTokens > c.Context.MaxTokens {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d exceeds the history budget %d", c.LLM.MaxTokens, c.Context.MaxTokens))
	}
	if c.Store.Driver == orchestrator.DriverMilvus && c.Index.DeferEmbedding {
		warnings = append(warnings, "index defer_embedding has no effect with the milvus store, which requires embeddings")
	}

	return warnings
}

// Pipeline converts the configuration into pipeline settings.
func (c *Config) Pipeline() orchestrator.Config {
	p := orchestrator.DefaultConfig()

	p.TopK = c.Retrieval.TopK
	p.MinSimilarity = c.Retrieval.MinSimilarity
	p.MaxTokens = c.Context.MaxTokens
	p.KeepRecentPairs = c.Context.KeepRecentPairs
	p.Compression = c.Context.Compression
	p.TokenEstimator = c.Context.Estimator
	p.Instructions = c.LLM.Instructions

	p.EmbedderModel = c.Embedding.Model
	p.EmbedderDimension = c.Embedding.Dimension
	p.EmbedCacheSize = c.Embedding.CacheSize

	p.StoreDriver = c.Store.Driver
	p.StoreDSN = c.Store.DSN

	p.LLMProvider = c.LLM.Provider
	p.LLMConfig.Model = c.LLM.Model
	p.LLMConfig.APIKey = c.LLM.APIKey
	p.LLMConfig.BaseURL = c.LLM.BaseURL
	p.LLMConfig.Temperature = float32(c.LLM.Temperature)
	p.LLMConfig.MaxTokens = c.LLM.MaxTokens

	p.MilvusConfig.Address = c.Milvus.Address
	p.MilvusConfig.CollectionName = c.Milvus.Collection
	p.MilvusConfig.M = c.Milvus.M
	p.MilvusConfig.EfConstruction = c.Milvus.EfConstruction
	p.MilvusConfig.Dimension = c.Embedding.Dimension

	p.IndexOptions.BatchSize = c.Index.BatchSize
	p.IndexOptions.ChunkSize = c.Index.ChunkSize
	p.IndexOptions.DeferEmbedding = c.Index.DeferEmbedding

	return p
}

// LogLevel parses Log.Level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	return ParseLevel(c.Log.Level)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown values yield info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
