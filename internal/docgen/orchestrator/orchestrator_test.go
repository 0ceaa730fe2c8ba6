package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferg-cod3s/docuforge/internal/corpus"
	"github.com/ferg-cod3s/docuforge/internal/docgen/chapter"
	"github.com/ferg-cod3s/docuforge/internal/docgen/checkpoint"
	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/docgen/outline"
	"github.com/ferg-cod3s/docuforge/internal/docgen/progress"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
	"github.com/ferg-cod3s/docuforge/internal/rag/engine"
)

type fakeGitHubFetcher struct {
	result *corpus.Result
	err    error
}

func (f *fakeGitHubFetcher) Fetch(ctx context.Context, owner, repo string) (*corpus.Result, error) {
	return f.result, f.err
}

type constEmbedder struct{ vec []float32 }

func (c *constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.vec, nil
}

func llmServer(t *testing.T, chapterBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": chapterBody}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildTestOrchestrator(t *testing.T, fetcher GitHubFetcher) (*Orchestrator, *progress.MemorySink) {
	t.Helper()
	srv := llmServer(t, "Generated section content with details.")
	llm := llmclient.New(srv.URL, "test-model", "")
	ragE := engine.New(&constEmbedder{vec: []float32{1, 0}}, llm, 50, 5)

	outlineGen := outline.New(llm)
	chapterGen := chapter.New(llm, ragE, 5)

	store, err := checkpoint.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sink := progress.NewMemorySink()

	o := New(fetcher, outlineGen, ragE, chapterGen, store, sink, nil, t.TempDir(), 5, nil, nil)
	return o, sink
}

func sampleCorpusResult() *corpus.Result {
	return &corpus.Result{
		Included: []corpus.File{
			{Path: "main.go", Content: []byte("package main\n\nfunc main() {}\n"), Size: 30, Extension: "go"},
			{Path: "README.md", Content: []byte("# Tool\n\nA sample tool.\n"), Size: 24, Extension: "md"},
		},
		TotalFiles: 2, TotalBytes: 54,
	}
}

func TestGenerateFromGitHub_CompletesAndReportsProgress(t *testing.T) {
	fetcher := &fakeGitHubFetcher{result: sampleCorpusResult()}
	o, sink := buildTestOrchestrator(t, fetcher)

	out, err := o.GenerateFromGitHub(context.Background(), "acme_tool_1700000000", "acme", "tool", "https://github.com/acme/tool")
	require.NoError(t, err)

	assert.Contains(t, out.Markdown, "# tool Documentation")
	assert.NotEmpty(t, out.Chapters)
	assert.Equal(t, "acme", out.RepoInfo.Owner)

	require.NotEmpty(t, sink.Updates)
	last := sink.Last()
	assert.Equal(t, model.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestGenerateFromGitHub_FetchFailurePropagatesAndMarksFailed(t *testing.T) {
	fetcher := &fakeGitHubFetcher{err: assertErr{"ingestion exploded"}}
	o, sink := buildTestOrchestrator(t, fetcher)

	_, err := o.GenerateFromGitHub(context.Background(), "acme_tool_1700000001", "acme", "tool", "https://github.com/acme/tool")
	require.Error(t, err)

	last := sink.Last()
	assert.Equal(t, model.StatusFailed, last.Status)
}

func TestGenerateFromArchive_SkipsIngestionPhase(t *testing.T) {
	o, _ := buildTestOrchestrator(t, &fakeGitHubFetcher{})
	files := sampleCorpusResult().Included

	out, err := o.GenerateFromArchive(context.Background(), "acme_tool_upload_1", files, "acme", "tool")
	require.NoError(t, err)
	assert.NotEmpty(t, out.Markdown)
}

func TestResume_NoCheckpointReturnsNotFound(t *testing.T) {
	o, _ := buildTestOrchestrator(t, &fakeGitHubFetcher{})
	_, err := o.Resume(context.Background(), "does-not-exist")
	require.Error(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
