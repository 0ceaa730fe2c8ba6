package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(time.Duration) {}

func TestDiscoverModel_FindsEmbeddingEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{
				{"id": "llama-3-8b-instruct"},
				{"id": "Qwen3-Embedding-0.6B-GGUF"},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL, "")
	require.NoError(t, c.DiscoverModel(context.Background()))
	assert.Equal(t, "Qwen3-Embedding-0.6B-GGUF", c.Model())
}

func TestDiscoverModel_NoEmbeddingModelFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "llama-3-8b-instruct"}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "")
	err := c.DiscoverModel(context.Background())
	require.Error(t, err)
}

func TestEmbed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "test-embed", WithSleep(noSleep))
	vec, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedBatch_SkipsBlankEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2}}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "test-embed", WithSleep(noSleep))
	out, err := c.EmbedBatch(context.Background(), []string{"", "  ", "real text"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestEmbed_RetriesOn503ThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "test-embed", WithSleep(noSleep))
	vec, err := c.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 3, calls)
}

func TestEmbed_BadRequestDoesNotRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(server.URL, "missing-model", WithSleep(noSleep))
	_, err := c.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbed_ExhaustsRetriesOn500(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "test-embed", WithSleep(noSleep))
	_, err := c.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, maxRetries, calls)
}
