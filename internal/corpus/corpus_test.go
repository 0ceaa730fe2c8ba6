package corpus

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFilters(t *testing.T) *FilterConfig {
	fc, err := NewFilterConfig(
		[]string{`node_modules`, `\.git`},
		[]string{"go", "md", "py"},
		10, 1_000_000, 500_000,
	)
	require.NoError(t, err)
	return fc
}

func TestParseRepoURL_HTTPS(t *testing.T) {
	owner, repo, err := ParseRepoURL("https://github.com/acme/tool")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "tool", repo)
}

func TestParseRepoURL_HTTPSWithGitSuffix(t *testing.T) {
	owner, repo, err := ParseRepoURL("https://github.com/acme/tool.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "tool", repo)
}

func TestParseRepoURL_SCPLike(t *testing.T) {
	owner, repo, err := ParseRepoURL("git@github.com:acme/tool.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "tool", repo)
}

func TestParseRepoURL_Bare(t *testing.T) {
	owner, repo, err := ParseRepoURL("acme/tool")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "tool", repo)
}

func TestParseRepoURL_Invalid(t *testing.T) {
	_, _, err := ParseRepoURL("not a repo reference")
	require.Error(t, err)
}

func TestGenerateRepoID_Format(t *testing.T) {
	now := time.Unix(1700000000, 0)
	id := GenerateRepoID("acme", "tool", now)
	assert.Equal(t, "acme_tool_1700000000", id)
}

func TestFilterCandidates_IgnoresPatternedPaths(t *testing.T) {
	fc := defaultFilters(t)
	admit, skipped, _ := filterCandidates(fc, []candidate{
		{path: "node_modules/pkg/index.js", size: 10},
		{path: "main.go", size: 10},
	})
	require.Len(t, admit, 1)
	assert.Equal(t, "main.go", admit[0].path)
	assert.Len(t, skipped, 1)
}

func TestFilterCandidates_RejectsDisallowedExtension(t *testing.T) {
	fc := defaultFilters(t)
	admit, skipped, _ := filterCandidates(fc, []candidate{
		{path: "image.png", size: 10},
	})
	assert.Empty(t, admit)
	assert.Len(t, skipped, 1)
}

func TestFilterCandidates_StopsAtMaxFiles(t *testing.T) {
	fc, err := NewFilterConfig(nil, []string{"go"}, 2, 1_000_000, 500_000)
	require.NoError(t, err)

	admit, skipped, warnings := filterCandidates(fc, []candidate{
		{path: "a.go", size: 1}, {path: "b.go", size: 1}, {path: "c.go", size: 1},
	})
	assert.Len(t, admit, 2)
	assert.Len(t, skipped, 1)
	assert.Len(t, warnings, 1)
}

func TestFilterCandidates_StopsAtCumulativeByteCap(t *testing.T) {
	fc, err := NewFilterConfig(nil, []string{"go"}, 10, 15, 500_000)
	require.NoError(t, err)

	admit, _, warnings := filterCandidates(fc, []candidate{
		{path: "a.go", size: 10}, {path: "b.go", size: 10},
	})
	assert.Len(t, admit, 1)
	assert.Len(t, warnings, 1)
}

func TestFilterCandidates_SkipsOversizeSingleFile(t *testing.T) {
	fc, err := NewFilterConfig(nil, []string{"go"}, 10, 1_000_000, 5)
	require.NoError(t, err)

	admit, skipped, warnings := filterCandidates(fc, []candidate{{path: "big.go", size: 100}})
	assert.Empty(t, admit)
	assert.Len(t, skipped, 1)
	assert.Len(t, warnings, 1)
}

func TestArchiveSource_FetchFiltersAndStripsRoot(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	write("repo-main/main.go", "package main")
	write("repo-main/node_modules/dep/index.js", "ignored")
	write("repo-main/README.md", "# hi")
	require.NoError(t, zw.Close())

	fc := defaultFilters(t)
	src := NewArchiveSource(fc)
	result, err := src.Fetch(buf.Bytes())
	require.NoError(t, err)

	var paths []string
	for _, f := range result.Included {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"main.go", "README.md"}, paths)
}

func TestArchiveSource_AllFilteredOutIsValidationFailure(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("root/image.png")
	require.NoError(t, err)
	_, err = w.Write([]byte("binary"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	fc := defaultFilters(t)
	src := NewArchiveSource(fc)
	_, err = src.Fetch(buf.Bytes())
	require.Error(t, err)
}
