package outline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferg-cod3s/docuforge/internal/corpus"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
)

func serverWithContent(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sampleFiles() []corpus.File {
	return []corpus.File{
		{Path: "main.go", Content: []byte("package main\n"), Size: 13, Extension: "go"},
		{Path: "README.md", Content: []byte("# hi\n"), Size: 5, Extension: "md"},
	}
}

func TestPlan_ParsesJSONOutline(t *testing.T) {
	content := `{"chapters": [
		{"title": "Overview", "description": "intro", "queries": ["a", "b", "c"]},
		{"title": "Architecture", "description": "design", "queries": ["d", "e", "f"]},
		{"title": "Core", "description": "core", "queries": ["g", "h"]},
		{"title": "API", "description": "api", "queries": ["i"]},
		{"title": "Usage", "description": "usage", "queries": ["j"]}
	]}`
	srv := serverWithContent(t, content)
	gen := New(llmclient.New(srv.URL, "test-model", ""))

	plan := gen.Plan(context.Background(), sampleFiles(), "acme", "tool")
	require.Len(t, plan.Chapters, 5)
	assert.Equal(t, "Overview", plan.Chapters[0].Title)
	assert.Equal(t, []string{"a", "b", "c"}, plan.Chapters[0].RetrievalQueries)
}

func TestPlan_FallsBackToMarkdownWhenNoJSON(t *testing.T) {
	content := "## Overview\nIntro text\n- repository structure\n- main entry\n" +
		"## Architecture\nDesign text\n- design patterns\n" +
		"## Core\ntext\n- core modules\n" +
		"## API\ntext\n- endpoints\n" +
		"## Usage\ntext\n- tutorial\n"
	srv := serverWithContent(t, content)
	gen := New(llmclient.New(srv.URL, "test-model", ""))

	plan := gen.Plan(context.Background(), sampleFiles(), "acme", "tool")
	require.Len(t, plan.Chapters, 5)
	assert.Equal(t, "Overview", plan.Chapters[0].Title)
	assert.Contains(t, plan.Chapters[0].RetrievalQueries, "repository structure")
}

func TestPlan_FallsBackToDefaultWhenUnparseable(t *testing.T) {
	srv := serverWithContent(t, "no structure here at all")
	gen := New(llmclient.New(srv.URL, "test-model", ""))

	plan := gen.Plan(context.Background(), sampleFiles(), "acme", "tool")
	assert.GreaterOrEqual(t, len(plan.Chapters), 5)
	assert.Equal(t, "Overview", plan.Chapters[0].Title)
}

func TestPlan_FallsBackToDefaultOnLLMError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	gen := New(llmclient.New(srv.URL, "test-model", ""))

	plan := gen.Plan(context.Background(), sampleFiles(), "acme", "tool")
	assert.Equal(t, "Overview", plan.Chapters[0].Title)
}
