package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	exerciseKnowledgeStore(t, store)
}

func TestSQLiteStore_NormalizesLegacyRows(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "legacy.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Rows written by other tools store embeddings in assorted shapes.
	rows := []struct {
		id, embedding any
	}{
		{"json", "[1, 0]"},
		{"csv", "0,1"},
		{"empty", ""},
		{"brackets", "[]"},
		{"null", nil},
		{"garbage", "not-a-vector"},
	}
	for i, r := range rows {
		_, err := store.db.ExecContext(ctx,
			"INSERT INTO knowledge_chunks (id, source_id, source_title, chunk_index, text, embedding) VALUES (?, ?, ?, ?, ?, ?)",
			r.id, "legacy", "Legacy", i, "row", r.embedding)
		if err != nil {
			t.Fatalf("insert %v: %v", r.id, err)
		}
	}

	candidates, err := store.Candidates(ctx, nil)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	embedded := 0
	for _, c := range candidates {
		if c.HasEmbedding() {
			embedded++
		}
	}
	if embedded != 2 {
		t.Errorf("expected 2 usable embeddings, got %d", embedded)
	}

	ordered, err := store.Ordered(ctx, 10, nil)
	if err != nil {
		t.Fatalf("Ordered failed: %v", err)
	}
	if len(ordered) != len(rows) {
		t.Errorf("fallback should see every row, got %d", len(ordered))
	}

	// Ranking over legacy rows only sees the parseable vectors.
	r, err := NewRetriever(&mockEmbedder{vectors: map[string][]float32{"q": {1, 0}}}, store)
	if err != nil {
		t.Fatalf("NewRetriever failed: %v", err)
	}
	results, err := r.Search(ctx, "q", 5, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "json" {
		t.Errorf("unexpected ranked results %+v", results)
	}
}

func TestPostgresDialect(t *testing.T) {
	s := &sqlStore{dialect: postgresDialect}
	clause, args := s.sourceFilter(&SearchOptions{SourceIDs: []string{"a", "b"}}, 1)
	if clause != " AND source_id IN ($1, $2)" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}

	clause, args = s.sourceFilter(nil, 1)
	if clause != "" || args != nil {
		t.Errorf("nil options should produce no filter, got %q %v", clause, args)
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("FURROW_PG_DSN")
	if dsn == "" {
		t.Skip("FURROW_PG_DSN not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer store.Close()

	if _, err := store.db.ExecContext(ctx, "TRUNCATE knowledge_chunks"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseKnowledgeStore(t, store)
}
