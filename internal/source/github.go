package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v77/github"
)

// NewGitHubClient creates a GitHub client, authenticated when token is set.
func NewGitHubClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token == "" {
		return client
	}
	return client.WithAuthToken(token)
}

// IssueOptions controls which issues are loaded.
type IssueOptions struct {
	State           string // "open", "closed" or "all"
	IncludeComments bool
	Limit           int // 0 means no limit
}

// DefaultIssueOptions loads every issue with its comments.
func DefaultIssueOptions() IssueOptions {
	return IssueOptions{State: "all", IncludeComments: true}
}

// LoadGitHubIssues loads the issues of owner/repo as documents, one per
// issue. Pull requests are skipped.
func LoadGitHubIssues(ctx context.Context, client *github.Client, owner, repo string, opts IssueOptions) ([]Document, error) {
	if opts.State == "" {
		opts.State = "all"
	}

	listOpts := &github.IssueListByRepoOptions{
		State:       opts.State,
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var docs []Document
	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, owner, repo, listOpts)
		if err != nil {
			return nil, handleAPIError(err, "failed to list issues")
		}

		for _, issue := range issues {
			if issue == nil || issue.IsPullRequest() {
				continue
			}

			var comments []*github.IssueComment
			if opts.IncludeComments && issue.GetComments() > 0 {
				comments, err = listIssueComments(ctx, client, owner, repo, issue.GetNumber())
				if err != nil {
					return nil, err
				}
			}

			docs = append(docs, IssueDocument(owner, repo, issue, comments))
			if opts.Limit > 0 && len(docs) >= opts.Limit {
				return docs, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		// IssueListByRepoOptions also embeds ListCursorOptions, which has its own Page.
		listOpts.ListOptions.Page = resp.NextPage
	}

	slog.Info("loaded issues", "component", "source", "repo", owner+"/"+repo, "documents", len(docs))
	return docs, nil
}

func listIssueComments(ctx context.Context, client *github.Client, owner, repo string, number int) ([]*github.IssueComment, error) {
	var all []*github.IssueComment

	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := client.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, handleAPIError(err, fmt.Sprintf("failed to list comments for #%d", number))
		}
		all = append(all, comments...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// IssueDocument renders an issue and its discussion as a single document.
func IssueDocument(owner, repo string, issue *github.Issue, comments []*github.IssueComment) Document {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(issue.GetTitle())
	b.WriteString("\n\n")
	if labels := issueLabels(issue); len(labels) > 0 {
		b.WriteString("Labels: " + strings.Join(labels, ", ") + "\n\n")
	}
	if body := strings.TrimSpace(issue.GetBody()); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}

	for _, c := range comments {
		if c == nil || strings.TrimSpace(c.GetBody()) == "" {
			continue
		}
		b.WriteString(c.GetUser().GetLogin())
		b.WriteString(" commented:\n\n")
		b.WriteString(strings.TrimSpace(c.GetBody()))
		b.WriteString("\n\n")
	}

	slug := owner + "/" + repo
	number := issue.GetNumber()
	// Issue bodies never carry page breaks worth keeping.
	text := strings.ReplaceAll(b.String(), "\f", "\n")

	return NewDocument(
		KindGitHub,
		fmt.Sprintf("github:%s#%d", slug, number),
		fmt.Sprintf("%s#%d: %s", slug, number, issue.GetTitle()),
		issue.GetHTMLURL(),
		text,
	)
}

func issueLabels(issue *github.Issue) []string {
	var labels []string
	for _, l := range issue.Labels {
		if name := l.GetName(); name != "" {
			labels = append(labels, name)
		}
	}
	return labels
}

// handleAPIError wraps API errors with context and detects rate limiting
func handleAPIError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%s: hit primary rate limit (used %d of %d, resets at %v): %w",
			msg, rateLimitErr.Rate.Used, rateLimitErr.Rate.Limit, rateLimitErr.Rate.Reset.Time, err)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: hit secondary rate limit (retry after %v): %w",
			msg, abuseErr.GetRetryAfter(), err)
	}

	return fmt.Errorf("%s: %w", msg, err)
}
