package corpus

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// GitHubSource fetches a corpus from a remote repository's git-data API:
// resolve default branch, enumerate the recursive tree, fetch blobs.
type GitHubSource struct {
	client  *github.Client
	filters *FilterConfig
	timeout time.Duration
}

// NewGitHubSource constructs a GitHubSource. An empty token yields an
// unauthenticated client, subject to GitHub's lower anonymous rate limit.
func NewGitHubSource(token string, filters *FilterConfig, timeout time.Duration) *GitHubSource {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	return &GitHubSource{
		client:  github.NewClient(httpClient),
		filters: filters,
		timeout: timeout,
	}
}

// Fetch resolves owner/repo's default branch, walks its tree, and fetches
// blob content for every file the filter pipeline admits.
func (s *GitHubSource) Fetch(ctx context.Context, owner, repo string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	repoInfo, resp, err := s.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classifyGitHubError(err, resp, owner, repo)
	}
	branch := repoInfo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	branchInfo, resp, err := s.client.Repositories.GetBranch(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, classifyGitHubError(err, resp, owner, repo)
	}
	treeSHA := branchInfo.GetCommit().GetCommit().GetTree().GetSHA()

	tree, resp, err := s.client.Git.GetTree(ctx, owner, repo, treeSHA, true)
	if err != nil {
		return nil, classifyGitHubError(err, resp, owner, repo)
	}

	candidates := make([]candidate, 0, len(tree.Entries))
	blobSHAByPath := make(map[string]string, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := canonicalPath(entry.GetPath())
		candidates = append(candidates, candidate{path: p, size: entry.GetSize()})
		blobSHAByPath[p] = entry.GetSHA()
	}

	admitted, skipped, warnings := filterCandidates(s.filters, candidates)
	if len(admitted) == 0 {
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "no files survived filtering for "+owner+"/"+repo)
	}

	result := &Result{Skipped: skipped, Warnings: warnings}
	for _, c := range admitted {
		sha := blobSHAByPath[c.path]
		content, fetchErr := s.fetchBlobWithRetry(ctx, owner, repo, sha)
		if fetchErr != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s (fetch failed)", c.path))
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to fetch %s: %v", c.path, fetchErr))
			continue
		}
		result.Included = append(result.Included, File{
			Path:      c.path,
			Content:   content,
			Size:      len(content),
			Extension: extensionOf(c.path),
		})
		result.TotalFiles++
		result.TotalBytes += len(content)
	}

	if len(result.Included) == 0 {
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "all admitted files failed to fetch for "+owner+"/"+repo)
	}
	return result, nil
}

// fetchBlobWithRetry fetches a blob, retrying once on a transient error per
// the corpus fetcher's single-retry policy for permanent-vs-transient
// per-file failures.
func (s *GitHubSource) fetchBlobWithRetry(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		blob, resp, err := s.client.Git.GetBlob(ctx, owner, repo, sha)
		if err == nil {
			data, decodeErr := decodeBlob(blob)
			if decodeErr == nil {
				return data, nil
			}
			return nil, decodeErr
		}
		lastErr = err
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	return nil, lastErr
}

func decodeBlob(blob *github.Blob) ([]byte, error) {
	if blob.GetEncoding() == "base64" {
		return base64.StdEncoding.DecodeString(blob.GetContent())
	}
	return []byte(blob.GetContent()), nil
}

func classifyGitHubError(err error, resp *github.Response, owner, repo string) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.ErrNotFound, "corpus",
				fmt.Sprintf("repository %s/%s not found or private; ensure it is public or provide a token", owner, repo), err)
		case http.StatusForbidden:
			return errs.Wrap(errs.ErrTransient, "corpus",
				"GitHub API rate limit exceeded; set a token to increase limits", err)
		}
	}
	return errs.Wrap(errs.ErrTransient, "corpus", "failed to reach GitHub API", err)
}

func extensionOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '.' {
			return p[i+1:]
		}
		if p[i] == '/' {
			break
		}
	}
	return ""
}
