package rag

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

func TestDefaultMilvusConfig(t *testing.T) {
	t.Setenv("MILVUS_ADDRESS", "")
	t.Setenv("MILVUS_COLLECTION", "")

	cfg := DefaultMilvusConfig()
	if cfg.Address != "localhost:19530" {
		t.Errorf("Address = %q", cfg.Address)
	}
	if cfg.CollectionName != "furrow_chunks" {
		t.Errorf("CollectionName = %q", cfg.CollectionName)
	}
	if cfg.Dimension <= 0 || cfg.M <= 0 || cfg.EfConstruction <= 0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	t.Setenv("MILVUS_ADDRESS", "milvus:19530")
	if got := DefaultMilvusConfig().Address; got != "milvus:19530" {
		t.Errorf("Address from env = %q", got)
	}
}

func TestNewMilvusStore_InvalidDimension(t *testing.T) {
	cfg := DefaultMilvusConfig()
	cfg.Dimension = 0
	if _, err := NewMilvusStore(context.Background(), cfg); err != ErrInvalidDimension {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestMilvusStore_NearestValidation(t *testing.T) {
	store := &MilvusStore{config: MilvusConfig{CollectionName: "unused", Dimension: 3}}

	if _, err := store.Nearest(context.Background(), []float32{1, 0}, 5, nil); !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
	chunks, err := store.Nearest(context.Background(), []float32{1, 0, 0}, 0, nil)
	if err != nil || len(chunks) != 0 {
		t.Errorf("zero limit should return nothing without searching, got %v, %v", chunks, err)
	}
}

func TestInExpr(t *testing.T) {
	got := inExpr("source_id", []string{"a", `b"c`})
	want := `source_id in ["a", "b\"c"]`
	if got != want {
		t.Errorf("inExpr = %s, want %s", got, want)
	}
}

func TestChunksFromColumns(t *testing.T) {
	columns := []entity.Column{
		entity.NewColumnVarChar("id", []string{"x", "y"}),
		entity.NewColumnVarChar("source_id", []string{"s", "s"}),
		entity.NewColumnVarChar("source_title", []string{"Title", "Title"}),
		entity.NewColumnInt64("page_number", []int64{noPage, 7}),
		entity.NewColumnInt64("chunk_index", []int64{0, 1}),
		entity.NewColumnVarChar("text", []string{"one", "two"}),
		entity.NewColumnFloatVector("embedding", 2, [][]float32{{1, 0}, {0, 1}}),
	}

	chunks, err := chunksFromColumns(columns)
	if err != nil {
		t.Fatalf("chunksFromColumns failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].PageNumber != nil {
		t.Errorf("sentinel page should map to nil, got %v", *chunks[0].PageNumber)
	}
	if chunks[1].PageNumber == nil || *chunks[1].PageNumber != 7 {
		t.Errorf("page number = %v, want 7", chunks[1].PageNumber)
	}
	if chunks[1].ChunkIndex != 1 || chunks[1].Text != "two" || len(chunks[1].Embedding) != 2 {
		t.Errorf("unexpected chunk %+v", chunks[1])
	}

	short := append(columns[:5:5], entity.NewColumnVarChar("text", []string{"only one"}))
	if _, err := chunksFromColumns(short); err == nil {
		t.Error("expected error for mismatched column lengths")
	}
}

func TestMilvusStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("MILVUS_ADDRESS") == "" {
		t.Skip("MILVUS_ADDRESS not set")
	}

	ctx := context.Background()
	cfg := DefaultMilvusConfig()
	cfg.CollectionName = "furrow_chunks_test"
	cfg.Dimension = 2

	store, err := NewMilvusStore(ctx, cfg)
	if err != nil {
		t.Fatalf("NewMilvusStore failed: %v", err)
	}
	defer store.Close()
	defer store.client.DropCollection(ctx, cfg.CollectionName)

	chunks := []KnowledgeChunk{
		{ID: "m1", SourceID: "s1", SourceTitle: "Beds", ChunkIndex: 1, Text: "one", Embedding: []float32{1, 0}},
		{ID: "m0", SourceID: "s1", SourceTitle: "Beds", ChunkIndex: 0, Text: "zero", Embedding: []float32{0, 1}},
	}
	if err := store.Insert(ctx, chunks); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	near, err := store.Nearest(ctx, []float32{0.1, 1}, 1, nil)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if len(near) != 1 || near[0].ID != "m0" || len(near[0].Embedding) != 2 {
		t.Errorf("unexpected nearest result %+v", near)
	}

	ordered, err := store.Ordered(ctx, 5, nil)
	if err != nil {
		t.Fatalf("Ordered failed: %v", err)
	}
	if len(ordered) != 2 || ordered[0].ID != "m0" {
		t.Errorf("unexpected ordered result %+v", ordered)
	}

	err = store.Insert(ctx, []KnowledgeChunk{{ID: "raw", SourceID: "s2", Text: "x"}})
	if err == nil {
		t.Error("expected error inserting chunk without embedding")
	}
}
