package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Yates-Labs/furrow/internal/source"
)

var ErrUnknownSource = errors.New("cannot determine source type")

// SourceSpec describes where documents for indexing come from.
type SourceSpec struct {
	Kind     source.Kind
	Location string // Directory, clone URL or repository path
	Owner    string // GitHub only
	Repo     string // GitHub only
}

// DetectSource classifies a CLI source argument: "github:owner/repo" selects
// GitHub issues, a clone URL or a directory containing .git selects the git
// tree, and any other directory is read from disk.
func DetectSource(arg string) (SourceSpec, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return SourceSpec{}, fmt.Errorf("%w: empty argument", ErrUnknownSource)
	}

	if ref, ok := strings.CutPrefix(arg, "github:"); ok {
		owner, repo := parseGitHubRef(ref)
		if owner == "" || repo == "" {
			return SourceSpec{}, fmt.Errorf("%w: expected github:owner/repo, got %q", ErrUnknownSource, arg)
		}
		return SourceSpec{Kind: source.KindGitHub, Location: arg, Owner: owner, Repo: repo}, nil
	}

	if isRemoteURL(arg) {
		return SourceSpec{Kind: source.KindGit, Location: arg}, nil
	}

	info, err := os.Stat(arg)
	if err != nil {
		return SourceSpec{}, fmt.Errorf("%w: %w", ErrUnknownSource, err)
	}
	if !info.IsDir() {
		return SourceSpec{}, fmt.Errorf("%w: %s is not a directory", ErrUnknownSource, arg)
	}
	if _, err := os.Stat(filepath.Join(arg, ".git")); err == nil {
		return SourceSpec{Kind: source.KindGit, Location: arg}, nil
	}
	return SourceSpec{Kind: source.KindFile, Location: arg}, nil
}

// LoadDocuments loads every document src points at. token is only used
// for GitHub and may be empty for public repositories.
func LoadDocuments(ctx context.Context, src SourceSpec, token string) ([]source.Document, error) {
	switch src.Kind {
	case source.KindFile:
		return source.LoadDirectory(src.Location)
	case source.KindGit:
		return source.LoadGitRepository(src.Location)
	case source.KindGitHub:
		client := source.NewGitHubClient(token)
		return source.LoadGitHubIssues(ctx, client, src.Owner, src.Repo, source.DefaultIssueOptions())
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownSource, src.Kind)
	}
}

func isRemoteURL(s string) bool {
	for _, prefix := range []string{"https://", "http://", "git@", "ssh://", "git://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// parseGitHubRef splits "owner/repo", tolerating a github.com URL and a
// trailing .git or slash.
func parseGitHubRef(ref string) (owner, repo string) {
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "http://")
	ref = strings.TrimPrefix(ref, "github.com/")
	ref = strings.TrimSuffix(ref, "/")
	ref = strings.TrimSuffix(ref, ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
