package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/go-github/v77/github"
)

func TestIssueDocument(t *testing.T) {
	issue := &github.Issue{
		Number:  github.Ptr(42),
		Title:   github.Ptr("Tomatoes split after rain"),
		Body:    github.Ptr("Fruit cracks\fevery July."),
		HTMLURL: github.Ptr("https://github.com/acme/garden/issues/42"),
		Labels:  []*github.Label{{Name: github.Ptr("pests")}, {Name: github.Ptr("")}},
	}
	comments := []*github.IssueComment{
		{Body: github.Ptr("Water evenly."), User: &github.User{Login: github.Ptr("ana")}},
		{Body: github.Ptr("   ")},
		nil,
	}

	doc := IssueDocument("acme", "garden", issue, comments)

	if doc.SourceID != "github:acme/garden#42" {
		t.Errorf("SourceID = %q", doc.SourceID)
	}
	if doc.Title != "acme/garden#42: Tomatoes split after rain" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.URL != "https://github.com/acme/garden/issues/42" || doc.Kind != KindGitHub {
		t.Errorf("unexpected metadata %+v", doc)
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Number != 0 {
		t.Fatalf("issue should be a single unnumbered page, got %+v", doc.Pages)
	}

	text := doc.Pages[0].Text
	for _, want := range []string{"# Tomatoes split after rain", "Labels: pests\n", "Fruit cracks\nevery July.", "ana commented:\n\nWater evenly."} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q:\n%s", want, text)
		}
	}
	if strings.Count(text, "commented:") != 1 {
		t.Errorf("blank comments should be skipped:\n%s", text)
	}
}

func TestHandleAPIError(t *testing.T) {
	if handleAPIError(nil, "x") != nil {
		t.Error("nil error should stay nil")
	}

	base := errors.New("boom")
	err := handleAPIError(base, "failed to list issues")
	if !errors.Is(err, base) || !strings.HasPrefix(err.Error(), "failed to list issues: ") {
		t.Errorf("unexpected wrap %v", err)
	}

	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Request:    &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "https", Host: "api.github.com", Path: "/repos/acme/garden/issues"}},
	}
	rl := &github.RateLimitError{Rate: github.Rate{Limit: 60, Used: 60}, Response: resp, Message: "limited"}
	err = handleAPIError(rl, "failed")
	if !strings.Contains(err.Error(), "primary rate limit (used 60 of 60") {
		t.Errorf("rate limit not described: %v", err)
	}
	var target *github.RateLimitError
	if !errors.As(err, &target) {
		t.Error("rate limit error not preserved in chain")
	}
}

func TestNewGitHubClient(t *testing.T) {
	if NewGitHubClient("") == nil || NewGitHubClient("token") == nil {
		t.Error("expected a client")
	}
}

func newIssueServer(t *testing.T) *github.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/garden/issues", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
			fmt.Fprint(w, `[
				{"number": 1, "title": "Aphids on kale", "body": "Leaves curl.", "comments": 2},
				{"number": 2, "title": "Add watering schedule", "pull_request": {"url": "https://example.com/pr/2"}}
			]`)
		case "2":
			fmt.Fprint(w, `[{"number": 3, "title": "Slugs in lettuce", "body": "Holes overnight.", "comments": 0}]`)
		default:
			t.Errorf("unexpected issues page %q", r.URL.Query().Get("page"))
			fmt.Fprint(w, `[]`)
		}
	})
	mux.HandleFunc("/api/v3/repos/acme/garden/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
			fmt.Fprint(w, `[{"body": "Try soapy water.", "user": {"login": "ana"}}]`)
		default:
			fmt.Fprint(w, `[{"body": "Ladybirds helped.", "user": {"login": "ben"}}]`)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := github.NewClient(nil).WithEnterpriseURLs(srv.URL, srv.URL)
	if err != nil {
		t.Fatalf("WithEnterpriseURLs: %v", err)
	}
	return client
}

func TestLoadGitHubIssues_Pagination(t *testing.T) {
	client := newIssueServer(t)

	docs, err := LoadGitHubIssues(context.Background(), client, "acme", "garden", DefaultIssueOptions())
	if err != nil {
		t.Fatalf("LoadGitHubIssues failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 issues across both pages with the pull request skipped, got %d", len(docs))
	}
	if docs[0].SourceID != "github:acme/garden#1" || docs[1].SourceID != "github:acme/garden#3" {
		t.Errorf("unexpected documents %q, %q", docs[0].SourceID, docs[1].SourceID)
	}

	text := docs[0].Pages[0].Text
	for _, want := range []string{"ana commented:\n\nTry soapy water.", "ben commented:\n\nLadybirds helped."} {
		if !strings.Contains(text, want) {
			t.Errorf("comments from every page should be included, missing %q:\n%s", want, text)
		}
	}
}

func TestLoadGitHubIssues_Limit(t *testing.T) {
	client := newIssueServer(t)

	opts := DefaultIssueOptions()
	opts.Limit = 1
	opts.IncludeComments = false
	docs, err := LoadGitHubIssues(context.Background(), client, "acme", "garden", opts)
	if err != nil {
		t.Fatalf("LoadGitHubIssues failed: %v", err)
	}
	if len(docs) != 1 || strings.Contains(docs[0].Pages[0].Text, "commented:") {
		t.Errorf("expected one issue without comments, got %+v", docs)
	}
}

func TestLoadGitHubIssues_Integration(t *testing.T) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		t.Skip("GITHUB_TOKEN not set, skipping GitHub API tests")
	}

	opts := DefaultIssueOptions()
	opts.Limit = 3
	docs, err := LoadGitHubIssues(context.Background(), NewGitHubClient(token), "Yates-Labs", "thunk", opts)
	if err != nil {
		t.Fatalf("LoadGitHubIssues failed: %v", err)
	}
	if len(docs) > 3 {
		t.Errorf("limit ignored: got %d documents", len(docs))
	}
	for _, d := range docs {
		if !strings.HasPrefix(d.SourceID, "github:Yates-Labs/thunk#") {
			t.Errorf("unexpected SourceID %q", d.SourceID)
		}
	}
}
