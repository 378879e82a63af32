package source

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

// OpenRepository opens a Git repository from a local path, or clones a
// remote one into memory.
func OpenRepository(location string) (*git.Repository, error) {
	if info, err := os.Stat(location); err == nil && info.IsDir() {
		return git.PlainOpen(location)
	}
	return git.Clone(memory.NewStorage(), nil, &git.CloneOptions{
		URL:   location,
		Depth: 1,
	})
}

// LoadGitRepository loads the supported files of the HEAD tree of a
// repository. location is either a local path or a clone URL.
func LoadGitRepository(location string) ([]Document, error) {
	repo, err := OpenRepository(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", location, err)
	}
	return LoadRepositoryTree(repo, RepositoryName(location), location)
}

// LoadRepositoryTree reads supported files from the HEAD commit of repo.
func LoadRepositoryTree(repo *git.Repository, name, url string) ([]Document, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	var docs []Document
	err = tree.Files().ForEach(func(file *object.File) error {
		if !IsSupported(file.Name) {
			return nil
		}
		if isBinary, _ := file.IsBinary(); isBinary {
			return nil
		}

		content, err := file.Contents()
		if err != nil {
			slog.Warn("skipping unreadable file", "component", "source", "repo", name, "path", file.Name, "error", err)
			return nil
		}

		doc := NewDocument(KindGit, name+":"+file.Name, DocumentTitle(file.Name, content), url, content)
		if !doc.IsEmpty() {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}

	slog.Info("loaded repository", "component", "source", "repo", name,
		"commit", head.Hash().String()[:8], "documents", len(docs))
	return docs, nil
}

// RepositoryName derives a short name from a path or clone URL.
func RepositoryName(location string) string {
	location = strings.TrimRight(location, "/")
	location = strings.TrimSuffix(location, ".git")
	if i := strings.LastIndexAny(location, ":/"); i >= 0 && i+1 < len(location) {
		location = location[i+1:]
	}
	return path.Base(location)
}
