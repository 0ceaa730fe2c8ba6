package corpus

import (
	"context"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// LocalCloneSource fetches a corpus by shallow-cloning a repository to a
// temporary directory and walking its HEAD tree. This supplements the
// GitHub API source for hosts go-github doesn't speak to (self-hosted git
// servers reachable by URL but not the GitHub REST API).
type LocalCloneSource struct {
	filters *FilterConfig
}

// NewLocalCloneSource constructs a LocalCloneSource.
func NewLocalCloneSource(filters *FilterConfig) *LocalCloneSource {
	return &LocalCloneSource{filters: filters}
}

// Fetch clones cloneURL to a scratch directory (removed before returning)
// and filters its HEAD tree the same way the GitHub and archive sources do.
func (s *LocalCloneSource) Fetch(ctx context.Context, cloneURL string) (*Result, error) {
	dir, err := os.MkdirTemp("", "corpus-clone-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "corpus", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(dir)

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   cloneURL,
		Depth: 1,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransient, "corpus", "failed to clone "+cloneURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "corpus", "repository has no HEAD", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "corpus", "cannot load HEAD commit", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "corpus", "cannot load HEAD tree", err)
	}

	var candidates []candidate
	byPath := make(map[string]*object.File)
	err = tree.Files().ForEach(func(f *object.File) error {
		p := canonicalPath(f.Name)
		candidates = append(candidates, candidate{path: p, size: int(f.Size)})
		byPath[p] = f
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "corpus", "failed walking tree", err)
	}

	admitted, skipped, warnings := filterCandidates(s.filters, candidates)
	if len(admitted) == 0 {
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "no files survived filtering for "+cloneURL)
	}

	result := &Result{Skipped: skipped, Warnings: warnings}
	for _, c := range admitted {
		f := byPath[c.path]
		rc, openErr := f.Reader()
		if openErr != nil {
			result.Skipped = append(result.Skipped, c.path+" (read failed)")
			continue
		}
		content, readErr := io.ReadAll(rc)
		rc.Close()
		if readErr != nil {
			result.Skipped = append(result.Skipped, c.path+" (read failed)")
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
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "all admitted files failed to read for "+cloneURL)
	}
	return result, nil
}
