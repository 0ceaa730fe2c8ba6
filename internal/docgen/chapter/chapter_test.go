package chapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
	"github.com/ferg-cod3s/docuforge/internal/rag/engine"
	"github.com/ferg-cod3s/docuforge/internal/rag/vectorindex"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func buildIndex(t *testing.T) *vectorindex.Index {
	t.Helper()
	idx := vectorindex.New(2)
	err := idx.Add([][]float32{{1, 0}, {0, 1}}, []vectorindex.Metadata{
		{Text: "package main func main() {}", FilePath: "main.go", Filename: "main.go", ChunkIndex: 0},
		{Text: "# Title\nhello", FilePath: "README.md", Filename: "README.md", ChunkIndex: 0},
	})
	require.NoError(t, err)
	return idx
}

func llmServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_ProducesMarkdownWithHeading(t *testing.T) {
	srv := llmServer(t, "## Overview\n\nThis project does X.")
	llm := llmclient.New(srv.URL, "test-model", "")
	e := engine.New(&fakeEmbedder{vec: []float32{1, 0}}, llm, 50, 5)
	gen := New(llm, e, 5)

	idx := buildIndex(t)
	out := gen.Generate(context.Background(), idx, model.Chapter{
		Title: "Overview", Description: "intro", RetrievalQueries: []string{"main entry point"},
	}, "tool", 1, 1)

	assert.Contains(t, out, "## Overview")
	assert.Contains(t, out, "This project does X.")
}

func TestGenerate_PrependsHeadingWhenMissing(t *testing.T) {
	srv := llmServer(t, "This project does X.")
	llm := llmclient.New(srv.URL, "test-model", "")
	e := engine.New(&fakeEmbedder{vec: []float32{1, 0}}, llm, 50, 5)
	gen := New(llm, e, 5)

	idx := buildIndex(t)
	out := gen.Generate(context.Background(), idx, model.Chapter{
		Title: "Overview", Description: "intro", RetrievalQueries: []string{"main entry point"},
	}, "tool", 1, 1)

	assert.Contains(t, out, "## Overview")
}

func TestGenerate_EmptyIndexReturnsNoContentStub(t *testing.T) {
	srv := llmServer(t, "unused")
	llm := llmclient.New(srv.URL, "test-model", "")
	e := engine.New(&fakeEmbedder{vec: []float32{1, 0}}, llm, 50, 5)
	gen := New(llm, e, 5)

	idx := vectorindex.New(2)
	out := gen.Generate(context.Background(), idx, model.Chapter{
		Title: "Overview", Description: "intro", RetrievalQueries: []string{"anything"},
	}, "tool", 1, 1)

	assert.Contains(t, out, "No relevant content found")
}

func TestGenerate_LLMErrorReturnsErrorStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	llm := llmclient.New(srv.URL, "test-model", "")
	e := engine.New(&fakeEmbedder{vec: []float32{1, 0}}, llm, 50, 5)
	gen := New(llm, e, 5)

	idx := buildIndex(t)
	out := gen.Generate(context.Background(), idx, model.Chapter{
		Title: "Overview", Description: "intro", RetrievalQueries: []string{"main entry point"},
	}, "tool", 1, 1)

	assert.Contains(t, out, "Error generating content")
}
