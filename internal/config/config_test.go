package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yates-Labs/furrow/internal/orchestrator"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := cfg.Pipeline()
	if err := p.Validate(); err != nil {
		t.Errorf("default pipeline config should be valid: %v", err)
	}
	if p.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", p.TopK)
	}
	if p.StoreDriver != orchestrator.DriverSQLite {
		t.Errorf("expected sqlite driver, got %s", p.StoreDriver)
	}
	if cfg.LogLevel() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.LogLevel())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "furrow.yaml")
	yaml := `retrieval:
  top_k: 3
  min_similarity: 0.7
context:
  max_tokens: 4000
  compression: summary
store:
  driver: postgres
  dsn: postgres://localhost/furrow
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FURROW_RETRIEVAL_TOP_K", "8")
	t.Setenv("FURROW_LLM_MODEL", "gpt-4o-mini")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieval.TopK != 8 {
		t.Errorf("env should override file: expected top_k 8, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinSimilarity != 0.7 {
		t.Errorf("expected min_similarity 0.7, got %v", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Context.KeepRecentPairs != 3 {
		t.Errorf("unset keys should keep defaults, got keep_recent_pairs %d", cfg.Context.KeepRecentPairs)
	}

	p := cfg.Pipeline()
	if p.MaxTokens != 4000 || p.Compression != orchestrator.CompressionSummary {
		t.Errorf("unexpected context settings: %d %s", p.MaxTokens, p.Compression)
	}
	if p.StoreDriver != orchestrator.DriverPostgres || p.StoreDSN != "postgres://localhost/furrow" {
		t.Errorf("unexpected store settings: %s %s", p.StoreDriver, p.StoreDSN)
	}
	if p.LLMConfig.Model != "gpt-4o-mini" {
		t.Errorf("expected model from env, got %s", p.LLMConfig.Model)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"similarity", func(c *Config) { c.Retrieval.MinSimilarity = 1.5 }, "min_similarity"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"reply budget", func(c *Config) { c.LLM.MaxTokens = 9000 }, "max_tokens"},
		{"milvus defer", func(c *Config) {
			c.Store.Driver = orchestrator.DriverMilvus
			c.Index.DeferEmbedding = true
		}, "defer_embedding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			warnings := cfg.Validate()
			if len(warnings) != 1 || !strings.Contains(warnings[0], tt.want) {
				t.Errorf("expected one warning about %s, got %v", tt.want, warnings)
			}
		})
	}

	cfg := Default()
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("defaults should not warn, got %v", warnings)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
