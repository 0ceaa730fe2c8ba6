package vectorindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_AssignsChunkIDsContinuingFromCurrentSize(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {0, 1}}, []Metadata{{FilePath: "a"}, {FilePath: "b"}}))
	require.NoError(t, idx.Add([][]float32{{1, 1}}, []Metadata{{FilePath: "c"}}))
	assert.Equal(t, 3, idx.Len())
}

func TestAdd_RejectsVectorMetadataLengthMismatch(t *testing.T) {
	idx := New(2)
	err := idx.Add([][]float32{{1, 0}}, nil)
	require.Error(t, err)
}

func TestAdd_RejectsDimensionMismatch(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []Metadata{{FilePath: "a"}}))
	err := idx.Add([][]float32{{1, 0, 0}}, []Metadata{{FilePath: "b"}})
	require.Error(t, err)
}

func TestSearch_FindsNearestBySimilarity(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {0, 1}, {1, 1}}, []Metadata{
		{FilePath: "x-axis", Text: "x"},
		{FilePath: "y-axis", Text: "y"},
		{FilePath: "diag", Text: "d"},
	}))

	matches, err := idx.Search([]float32{1, 0}, 2, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "x-axis", matches[0].Metadata.FilePath)
	assert.Greater(t, matches[0].Similarity, matches[len(matches)-1].Similarity)
}

func TestSearch_FiltersBySimilarityThreshold(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {-1, 0}}, []Metadata{{FilePath: "near"}, {FilePath: "far"}}))

	matches, err := idx.Search([]float32{1, 0}, 5, 0.9)
	require.NoError(t, err)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Similarity, 0.9)
	}
}

func TestSearch_EmptyIndexReturnsNoMatches(t *testing.T) {
	idx := New(2)
	matches, err := idx.Search([]float32{1, 0}, 5, 0.0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx := New(3)
	require.NoError(t, idx.Add([][]float32{{1, 2, 3}, {4, 5, 6}}, []Metadata{
		{FilePath: "one", Text: "first chunk"},
		{FilePath: "two", Text: "second chunk"},
	}))
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 3, loaded.Dim())

	matches, err := loaded.Search([]float32{1, 2, 3}, 1, 0.0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "one", matches[0].Metadata.FilePath)
	assert.Equal(t, "first chunk", matches[0].Metadata.Text)
}

func TestLoad_MissingFileReturnsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
