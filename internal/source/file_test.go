package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "beds.md"), "# Raised Beds\n\nBuild them 30cm tall.")
	writeFile(t, filepath.Join(root, "notes", "frost.txt"), "Last frost in April.")
	writeFile(t, filepath.Join(root, "notes", "image.png"), "binary")
	writeFile(t, filepath.Join(root, ".git", "HEAD.md"), "hidden")
	writeFile(t, filepath.Join(root, "empty.md"), "   ")

	docs, err := LoadDirectory(root)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %+v", len(docs), docs)
	}

	byID := map[string]Document{}
	for _, d := range docs {
		byID[d.SourceID] = d
	}

	beds, ok := byID["beds.md"]
	if !ok {
		t.Fatal("beds.md not loaded")
	}
	if beds.Title != "Raised Beds" || beds.Kind != KindFile {
		t.Errorf("unexpected document %+v", beds)
	}

	frost, ok := byID["notes/frost.txt"]
	if !ok {
		t.Fatal("notes/frost.txt not loaded with a slash-separated id")
	}
	if frost.Title != "frost" {
		t.Errorf("title = %q, want file name", frost.Title)
	}
}

func TestLoadDirectory_Errors(t *testing.T) {
	if _, err := LoadDirectory(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}

	file := filepath.Join(t.TempDir(), "file.md")
	writeFile(t, file, "x")
	if _, err := LoadDirectory(file); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestIsSupported(t *testing.T) {
	for path, want := range map[string]bool{
		"a.md":       true,
		"b.TXT":      true,
		"c.markdown": true,
		"d.go":       false,
		"noext":      false,
	} {
		if got := IsSupported(path); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDocumentTitle(t *testing.T) {
	if got := DocumentTitle("x/guide.md", "intro\n# Guide\nbody"); got != "Guide" {
		t.Errorf("title = %q", got)
	}
	if got := DocumentTitle("x/guide.md", "## Sub only"); got != "guide" {
		t.Errorf("title = %q", got)
	}
}
