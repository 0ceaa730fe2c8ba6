package corpus

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// ArchiveSource fetches a corpus from an in-memory zip upload, applying the
// same filter pipeline as the remote GitHub source.
type ArchiveSource struct {
	filters *FilterConfig
}

// NewArchiveSource constructs an ArchiveSource.
func NewArchiveSource(filters *FilterConfig) *ArchiveSource {
	return &ArchiveSource{filters: filters}
}

// Fetch reads data as a zip archive and returns its filtered corpus.
func (s *ArchiveSource) Fetch(data []byte) (*Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidationFailure, "corpus", "not a valid zip archive", err)
	}

	candidates := make([]candidate, 0, len(reader.File))
	byPath := make(map[string]*zip.File, len(reader.File))
	for _, zf := range reader.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		p := canonicalPath(stripArchiveRoot(zf.Name))
		candidates = append(candidates, candidate{path: p, size: int(zf.UncompressedSize64)})
		byPath[p] = zf
	}

	admitted, skipped, warnings := filterCandidates(s.filters, candidates)
	if len(admitted) == 0 {
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "no files survived filtering in archive")
	}

	result := &Result{Skipped: skipped, Warnings: warnings}
	for _, c := range admitted {
		zf := byPath[c.path]
		content, readErr := readZipFile(zf)
		if readErr != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s (read failed)", c.path))
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to read %s: %v", c.path, readErr))
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
		return nil, errs.New(errs.ErrValidationFailure, "corpus", "all admitted archive entries failed to read")
	}
	return result, nil
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// stripArchiveRoot drops the first path component of name (the
// "repo-branch/" wrapper folder GitHub's own codeload archives put around
// every entry), so corpus paths stay stable regardless of the archive's
// top-level folder name. It does not check that all entries share that
// folder: the first component is dropped from every name that has one, and
// a name without a '/' is returned unchanged.
func stripArchiveRoot(name string) string {
	for i, c := range name {
		if c == '/' {
			return name[i+1:]
		}
	}
	return name
}
