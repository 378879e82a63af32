package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yates-Labs/furrow/internal/conversation"
	"github.com/Yates-Labs/furrow/internal/rag"
)

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")

	history, err := loadHistory(path)
	if err != nil || history != nil {
		t.Fatalf("missing file should be an empty history, got %v, %v", history, err)
	}

	want := []conversation.Message{
		conversation.UserMessage("When do I sow carrots?"),
		conversation.AssistantMessage("From early spring, every three weeks."),
	}
	if err := saveHistory(path, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := loadHistory(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadHistory_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadHistory(bad); err == nil {
		t.Error("expected parse error")
	}

	roles := filepath.Join(dir, "roles.json")
	if err := os.WriteFile(roles, []byte(`[{"role":"system","content":"x"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadHistory(roles); !errors.Is(err, conversation.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestFormatSource(t *testing.T) {
	page := 4
	ranked := formatSource(1, rag.SearchResult{
		SourceTitle: "Seed Saving",
		PageNumber:  &page,
		ChunkText:   "Let the   pods dry\non the plant.",
		Similarity:  0.8123,
		Ranked:      true,
	})
	if !strings.HasPrefix(ranked, "[1] Seed Saving, page 4 (similarity 0.81)\n") {
		t.Errorf("unexpected label: %q", ranked)
	}
	if !strings.HasSuffix(ranked, "Let the pods dry on the plant.") {
		t.Errorf("whitespace should be collapsed: %q", ranked)
	}

	fallback := formatSource(2, rag.SearchResult{SourceTitle: "Almanac", ChunkText: "x"})
	if strings.Contains(fallback, "similarity") {
		t.Errorf("unranked results should not show similarity: %q", fallback)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("ñññññ", 3); got != "ñññ…" {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
}
